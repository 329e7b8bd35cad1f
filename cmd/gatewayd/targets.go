package main

import (
	"fmt"

	"github.com/spf13/afero"

	"github.com/CreatorDev/creator-wifire-app-sub001/config"
	"github.com/CreatorDev/creator-wifire-app-sub001/connmgr"
	"github.com/CreatorDev/creator-wifire-app-sub001/poller"
	"github.com/CreatorDev/creator-wifire-app-sub001/transport"
)

func targets(fs afero.Fs, endpoints []config.EndpointConfig) ([]poller.Target, error) {
	ts := make([]poller.Target, 0, len(endpoints))
	for _, e := range endpoints {
		ep := connmgr.Endpoint{
			Address:   e.Host,
			Port:      e.Port,
			KeepAlive: e.KeepAlive,
		}
		if e.TLS {
			trust, err := transport.LoadTrustMaterial(fs, e.Trust)
			if err != nil {
				return nil, fmt.Errorf("endpoint %s: %w", e.Name, err)
			}
			ep.Type = connmgr.TLS
			ep.Trust = trust
		}
		ts = append(ts, poller.Target{
			Name:            e.Name,
			Endpoint:        ep,
			Method:          e.Method,
			Path:            e.Path,
			Interval:        e.Interval,
			ResponseTimeout: e.ResponseTimeout,
		})
	}
	return ts, nil
}

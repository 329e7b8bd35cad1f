package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"time"

	"github.com/jpillora/backoff"
	"github.com/spf13/afero"
	"github.com/urfave/cli"
	"go.uber.org/zap"

	"github.com/CreatorDev/creator-wifire-app-sub001/connmgr"
	"github.com/CreatorDev/creator-wifire-app-sub001/lib"
	"github.com/CreatorDev/creator-wifire-app-sub001/msgparser"
	"github.com/CreatorDev/creator-wifire-app-sub001/transport"
)

var probeFlags = []cli.Flag{
	cli.UintFlag{Name: "port, p", Usage: "server port, 80 or 443 by default"},
	cli.BoolFlag{Name: "tls", Usage: "use a TLS session"},
	cli.StringFlag{Name: "method", Value: "GET"},
	cli.StringFlag{Name: "path", Value: "/"},
	cli.StringSliceFlag{Name: "ca", Usage: "PEM file of a trusted CA, repeatable"},
	cli.BoolFlag{Name: "insecure", Usage: "skip server certificate verification"},
	cli.DurationFlag{Name: "timeout", Value: 10 * time.Second, Usage: "response timeout"},
	cli.IntFlag{Name: "attempts", Value: 8, Usage: "connection attempts"},
}

var (
	errHostRequired = errors.New("probe: host is required")
	errNoResponse   = errors.New("no response")
)

func probe(c *cli.Context) error {
	host := c.Args().First()
	if host == "" {
		return errHostRequired
	}

	log, err := loggerFor(c, "warn", false)
	if err != nil {
		return err
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	m := connmgr.New(connmgr.DefaultConfig(), connmgr.WithLogger(log))
	m.Start(ctx)
	defer m.Shutdown()

	ep, err := probeEndpoint(ctx, c, m, host)
	if err != nil {
		return err
	}

	done := make(chan error, 1)
	h, err := dialWithRetry(ctx, log, m, ep, c.Int("attempts"), eventPrinter(c.App.Writer, done))
	if err != nil {
		return err
	}
	defer m.DeleteConnection(h)

	req := fmt.Sprintf("%s %s HTTP/1.1\r\nHost: %s\r\nConnection: close\r\n\r\n", c.String("method"), c.String("path"), host)
	if err := m.SendRequest(h, []byte(req), c.Duration("timeout")); err != nil {
		return err
	}

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func probeEndpoint(ctx context.Context, c *cli.Context, m *connmgr.Manager, host string) (connmgr.Endpoint, error) {
	ip, err := m.GetHostByName(ctx, host)
	if err != nil {
		return connmgr.Endpoint{}, err
	}

	ep := connmgr.Endpoint{Address: ip.String(), Port: uint16(c.Uint("port"))}
	if c.Bool("tls") {
		trust, err := transport.LoadTrustMaterial(afero.NewOsFs(), transport.TrustFiles{
			CAFiles:            c.StringSlice("ca"),
			ServerName:         host,
			InsecureSkipVerify: c.Bool("insecure"),
		})
		if err != nil {
			return ep, err
		}
		ep.Type = connmgr.TLS
		ep.Trust = trust
	}
	if ep.Port == 0 {
		ep.Port = 80
		if ep.Type == connmgr.TLS {
			ep.Port = 443
		}
	}
	return ep, nil
}

func dialWithRetry(ctx context.Context, log *zap.Logger, m *connmgr.Manager, ep connmgr.Endpoint, attempts int, hd connmgr.Handler) (connmgr.Handle, error) {
	b := &backoff.Backoff{
		Factor: 1.25,
		Jitter: true,
		Min:    500 * time.Millisecond,
		Max:    time.Second,
	}

	var err error
	for i := 0; i < attempts; i++ {
		var h connmgr.Handle
		h, err = m.CreateConnection(ctx, ep, hd)
		if err == nil {
			return h, nil
		}
		if errors.Is(err, connmgr.ErrResourceExhausted) || errors.Is(err, connmgr.ErrClosed) {
			return connmgr.InvalidHandle, err
		}

		d := b.Duration()
		log.Warn("connect failed, retrying", zap.String("address", transport.HostAddr(ep.Address, ep.Port)), zap.Duration("in", d), zap.Error(err))
		if serr := lib.Sleep(ctx, d); serr != nil {
			return connmgr.InvalidHandle, serr
		}
	}
	return connmgr.InvalidHandle, err
}

// eventPrinter writes each event to w and reports the outcome of the first
// message on done.
func eventPrinter(w io.Writer, done chan<- error) connmgr.HandlerFunc {
	return func(h connmgr.Handle, ev msgparser.Event, err error) bool {
		switch ev.Type {
		case msgparser.EventLine:
			fmt.Fprintf(w, "%s: %s\n", ev.Type, ev.Value)
		case msgparser.EventHeader:
			fmt.Fprintf(w, "%s: %s: %s\n", ev.Type, ev.Name, ev.Value)
		case msgparser.EventData:
			fmt.Fprintf(w, "%s: %d bytes\n%s\n", ev.Type, len(ev.Value), ev.Value)
		case msgparser.EventFinished:
			fmt.Fprintln(w, ev.Type)
			report(done, nil)
		case msgparser.EventNetworkFailure:
			fmt.Fprintf(w, "%s: %v\n", ev.Type, err)
			report(done, fmt.Errorf("%w: %w", errNoResponse, err))
		default:
			fmt.Fprintln(w, ev.Type)
		}
		return true
	}
}

func report(done chan<- error, err error) {
	select {
	case done <- err:
	default:
	}
}

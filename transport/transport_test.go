package transport_test

import (
	"context"
	"crypto/tls"
	"io"
	"net"
	"os"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/CreatorDev/creator-wifire-app-sub001/transport"
	"github.com/CreatorDev/creator-wifire-app-sub001/transport/transporttest"
)

func readUntil(t *testing.T, tr transport.Transport, want int) []byte {
	t.Helper()
	var got []byte
	buf := make([]byte, 64)
	deadline := time.Now().Add(5 * time.Second)
	for len(got) < want {
		require.True(t, time.Now().Before(deadline), "timed out reading")
		n, err := tr.Read(buf)
		if err == transport.ErrWouldBlock {
			continue
		}
		require.NoError(t, err)
		got = append(got, buf[:n]...)
	}
	return got
}

func TestNetTransportPlain(t *testing.T) {
	defer goleak.VerifyNone(t)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	accepted := make(chan net.Conn, 1)
	go func() {
		conn, err := ln.Accept()
		if err == nil {
			accepted <- conn
		}
		close(accepted)
	}()

	tr, err := transport.NetDialer{}.Dial(context.Background(), ln.Addr().String(), true)
	require.NoError(t, err)
	defer tr.Close()

	server := <-accepted
	require.NotNil(t, server)
	defer server.Close()

	require.Equal(t, server.RemoteAddr().(*net.TCPAddr).Port, tr.LocalPort())

	n, err := tr.Read(make([]byte, 16))
	require.ErrorIs(t, err, transport.ErrWouldBlock)
	require.Zero(t, n)

	_, err = server.Write([]byte("hello"))
	require.NoError(t, err)
	require.Equal(t, "hello", string(readUntil(t, tr, 5)))

	n, err = tr.Write([]byte("ping"))
	require.NoError(t, err)
	require.Equal(t, 4, n)

	buf := make([]byte, 4)
	_, err = io.ReadFull(server, buf)
	require.NoError(t, err)
	require.Equal(t, "ping", string(buf))

	require.NoError(t, tr.EndSession())

	require.NoError(t, server.Close())
	deadline := time.Now().Add(5 * time.Second)
	for {
		require.True(t, time.Now().Before(deadline))
		_, err = tr.Read(make([]byte, 16))
		if err != transport.ErrWouldBlock {
			break
		}
	}
	require.Equal(t, transport.KindConnectionClosed, transport.Classify(err))
}

func TestNetTransportTLS(t *testing.T) {
	defer goleak.VerifyNone(t)

	cert, err := transporttest.NewCertificate()
	require.NoError(t, err)

	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/etc/gw/ca.pem", cert.CertPEM, 0o644))
	trust, err := transport.LoadTrustMaterial(fs, transport.TrustFiles{CAFiles: []string{"/etc/gw/ca.pem"}})
	require.NoError(t, err)

	ln, err := tls.Listen("tcp", "127.0.0.1:0", cert.ServerConfig())
	require.NoError(t, err)
	defer ln.Close()

	done := make(chan error, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			done <- err
			return
		}
		defer conn.Close()
		buf := make([]byte, 4)
		if _, err := io.ReadFull(conn, buf); err != nil {
			done <- err
			return
		}
		_, err = conn.Write(append([]byte("re:"), buf...))
		done <- err
	}()

	tr, err := transport.NetDialer{}.Dial(context.Background(), ln.Addr().String(), false)
	require.NoError(t, err)
	defer tr.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, tr.StartHandshake(ctx, trust))
	require.Error(t, tr.StartHandshake(ctx, trust))

	_, err = tr.Write([]byte("ping"))
	require.NoError(t, err)
	require.Equal(t, "re:ping", string(readUntil(t, tr, 7)))
	require.NoError(t, <-done)
	_ = tr.EndSession()
}

func TestNetTransportTLSUntrusted(t *testing.T) {
	defer goleak.VerifyNone(t)

	cert, err := transporttest.NewCertificate()
	require.NoError(t, err)

	ln, err := tls.Listen("tcp", "127.0.0.1:0", cert.ServerConfig())
	require.NoError(t, err)
	defer ln.Close()

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		_ = conn.(*tls.Conn).Handshake()
	}()

	tr, err := transport.NetDialer{}.Dial(context.Background(), ln.Addr().String(), false)
	require.NoError(t, err)
	defer tr.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.Error(t, tr.StartHandshake(ctx, &transport.TrustMaterial{}))
}

func TestLoadTrustMaterial(t *testing.T) {
	cert, err := transporttest.NewCertificate()
	require.NoError(t, err)

	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "ca.pem", cert.CertPEM, 0o644))
	require.NoError(t, afero.WriteFile(fs, "client.pem", cert.CertPEM, 0o644))
	require.NoError(t, afero.WriteFile(fs, "client.key", cert.KeyPEM, 0o600))
	require.NoError(t, afero.WriteFile(fs, "junk.pem", []byte("not pem"), 0o644))

	m, err := transport.LoadTrustMaterial(fs, transport.TrustFiles{
		CAFiles:    []string{"ca.pem"},
		CertFile:   "client.pem",
		KeyFile:    "client.key",
		ServerName: "gw.local",
		MinVersion: "1.3",
	})
	require.NoError(t, err)
	require.NotNil(t, m.RootCAs)
	require.Len(t, m.Certificates, 1)

	cfg := m.TLSConfig("10.0.0.1")
	require.Equal(t, "gw.local", cfg.ServerName)
	require.Equal(t, uint16(tls.VersionTLS13), cfg.MinVersion)

	_, err = transport.LoadTrustMaterial(fs, transport.TrustFiles{CAFiles: []string{"missing.pem"}})
	require.ErrorIs(t, err, os.ErrNotExist)

	_, err = transport.LoadTrustMaterial(fs, transport.TrustFiles{CAFiles: []string{"junk.pem"}})
	require.Error(t, err)

	_, err = transport.LoadTrustMaterial(fs, transport.TrustFiles{CertFile: "client.pem"})
	require.Error(t, err)

	var nilTrust *transport.TrustMaterial
	cfg = nilTrust.TLSConfig("example.com")
	require.Equal(t, "example.com", cfg.ServerName)
	require.Equal(t, uint16(tls.VersionTLS12), cfg.MinVersion)
}

func TestClassify(t *testing.T) {
	require.Equal(t, transport.KindNone, transport.Classify(nil))
	require.Equal(t, transport.KindWouldBlock, transport.Classify(transport.ErrWouldBlock))
	require.Equal(t, transport.KindTimeout, transport.Classify(transport.ErrTimeout))
	require.Equal(t, transport.KindConnectionClosed, transport.Classify(io.EOF))
	require.Equal(t, transport.KindConnectionClosed, transport.Classify(net.ErrClosed))
	require.Equal(t, transport.KindWouldBlock, transport.Classify(os.ErrDeadlineExceeded))
	require.Equal(t, transport.KindUnspecified, transport.Classify(io.ErrShortWrite))
}

func TestHostAddr(t *testing.T) {
	require.Equal(t, "127.0.0.1:80", transport.HostAddr("127.0.0.1", 80))
	require.Equal(t, "[::1]:443", transport.HostAddr("::1", 443))

	host, port, err := transport.SplitHostAddr("[::1]:443")
	require.NoError(t, err)
	require.Equal(t, "::1", host)
	require.EqualValues(t, 443, port)

	_, _, err = transport.SplitHostAddr("host:99999")
	require.Error(t, err)
}

// Command anytls-client dials an AnyTLS server and forwards a local TCP
// port to a single fixed destination. It is the thinnest possible
// front-end: it does nothing but call CreateProxyStream and splice bytes,
// exactly what a SOCKS5 or HTTP CONNECT front-end would do.
package main

import (
	"context"
	"flag"
	"io"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"go.uber.org/zap"

	"github.com/anytls/anytls-go/pkg/client"
	"github.com/anytls/anytls-go/pkg/config"
	"github.com/anytls/anytls-go/pkg/tlsconfig"
)

func main() {
	localAddr := flag.String("local", "127.0.0.1:1080", "local address to accept plain TCP on")
	serverAddr := flag.String("server", "", "AnyTLS server address, host:port")
	remoteHost := flag.String("remote-host", "", "fixed destination host every local connection is forwarded to")
	remotePort := flag.Int("remote-port", 0, "fixed destination port")
	password := flag.String("password", "", "shared password")
	sni := flag.String("sni", "", "TLS server name, defaults to the server host")
	insecure := flag.Bool("insecure", false, "skip TLS certificate verification (testing only)")
	heartbeat := flag.Bool("heartbeat", true, "send keepalives so dead tunnels are detected and replaced")
	devMode := flag.Bool("dev", false, "log at debug level instead of info")
	flag.Parse()

	logger := newLogger(*devMode)
	defer logger.Sync()

	if *serverAddr == "" || *password == "" || *remoteHost == "" || *remotePort == 0 {
		logger.Fatal("-server, -password, -remote-host and -remote-port are required")
	}

	serverName := *sni
	if serverName == "" {
		host, _, err := net.SplitHostPort(*serverAddr)
		if err == nil {
			serverName = host
		}
	}

	cfg := config.DefaultClientConfig()
	cfg.ServerAddr = *serverAddr
	cfg.Password = *password
	cfg.TLSConfig = tlsconfig.NewClientConfig(serverName, *insecure)
	if *heartbeat {
		cfg.Heartbeat = config.DefaultHeartbeatConfig()
	}
	cfg.Logger = logger

	c, err := client.New(cfg)
	if err != nil {
		logger.Fatal("failed to construct client", zap.Error(err))
	}
	defer c.Close()

	ln, err := net.Listen("tcp", *localAddr)
	if err != nil {
		logger.Fatal("failed to listen locally", zap.Error(err))
	}
	logger.Info("forwarding", zap.String("local", *localAddr),
		zap.String("remote", net.JoinHostPort(*remoteHost, strconv.Itoa(*remotePort))))

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return
			default:
				logger.Warn("accept failed", zap.Error(err))
				return
			}
		}
		go handleConn(ctx, c, conn, *remoteHost, uint16(*remotePort), logger)
	}
}

func handleConn(ctx context.Context, c *client.Client, conn net.Conn, host string, port uint16, logger *zap.Logger) {
	defer conn.Close()

	st, _, err := c.CreateProxyStream(ctx, host, port)
	if err != nil {
		logger.Warn("failed to open proxy stream", zap.Error(err))
		return
	}

	done := make(chan struct{}, 2)
	go func() {
		io.Copy(conn, st.Reader())
		done <- struct{}{}
	}()
	go func() {
		buf := make([]byte, 32*1024)
		for {
			n, err := conn.Read(buf)
			if n > 0 {
				if werr := st.SendData(append([]byte(nil), buf[:n]...)); werr != nil {
					break
				}
			}
			if err != nil {
				break
			}
		}
		st.CloseWithError(nil)
		done <- struct{}{}
	}()
	<-done
	<-done
}

func newLogger(dev bool) *zap.Logger {
	if dev {
		l, _ := zap.NewDevelopment()
		return l
	}
	l, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	return l
}

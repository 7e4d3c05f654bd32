package server_test

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"io"
	"math/big"
	"net"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/anytls/anytls-go/pkg/client"
	"github.com/anytls/anytls-go/pkg/config"
	"github.com/anytls/anytls-go/pkg/server"
)

// generateTestCert builds a self-signed RSA certificate for "127.0.0.1".
func generateTestCert(t *testing.T) tls.Certificate {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	template := x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "127.0.0.1"},
		NotBefore:    time.Now(),
		NotAfter:     time.Now().Add(time.Hour),
		KeyUsage:     x509.KeyUsageKeyEncipherment | x509.KeyUsageDigitalSignature,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		IPAddresses:  []net.IP{net.ParseIP("127.0.0.1")},
	}
	der, err := x509.CreateCertificate(rand.Reader, &template, &template, &key.PublicKey, key)
	if err != nil {
		t.Fatalf("CreateCertificate: %v", err)
	}
	certPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})
	keyPEM := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)})
	cert, err := tls.X509KeyPair(certPEM, keyPEM)
	if err != nil {
		t.Fatalf("X509KeyPair: %v", err)
	}
	return cert
}

func TestClientServerTCPRoundTrip(t *testing.T) {
	cert := generateTestCert(t)

	echoLn, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("echo listen: %v", err)
	}
	defer echoLn.Close()
	go func() {
		for {
			c, err := echoLn.Accept()
			if err != nil {
				return
			}
			go func(c net.Conn) {
				io.Copy(c, c)
			}(c)
		}
	}()
	echoHost, echoPortStr, _ := net.SplitHostPort(echoLn.Addr().String())

	srvCfg := config.DefaultServerConfig()
	srvCfg.Password = "correct-password"
	srvCfg.TLSConfig = &tls.Config{Certificates: []tls.Certificate{cert}}
	srv, err := server.New(srvCfg)
	if err != nil {
		t.Fatalf("server.New: %v", err)
	}

	srvLn, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("server listen: %v", err)
	}
	defer srvLn.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go srv.Serve(ctx, srvLn)

	cliCfg := config.DefaultClientConfig()
	cliCfg.ServerAddr = srvLn.Addr().String()
	cliCfg.Password = "correct-password"
	cliCfg.TLSConfig = &tls.Config{InsecureSkipVerify: true}

	c, err := client.New(cliCfg)
	if err != nil {
		t.Fatalf("client.New: %v", err)
	}
	defer c.Close()

	port, err := strconv.Atoi(echoPortStr)
	if err != nil {
		t.Fatalf("parse port: %v", err)
	}

	st, _, err := c.CreateProxyStream(context.Background(), echoHost, uint16(port))
	if err != nil {
		t.Fatalf("CreateProxyStream: %v", err)
	}

	payload := []byte("round trip through anytls")
	if err := st.SendData(payload); err != nil {
		t.Fatalf("SendData: %v", err)
	}

	got := make([]byte, len(payload))
	if err := st.Reader().ReadExact(got); err != nil {
		t.Fatalf("ReadExact: %v", err)
	}
	if string(got) != string(payload) {
		t.Fatalf("got %q, want %q", got, payload)
	}
}

func TestSynAckFailureSurfacesServerError(t *testing.T) {
	cert := generateTestCert(t)

	srvCfg := config.DefaultServerConfig()
	srvCfg.Password = "pw"
	srvCfg.TLSConfig = &tls.Config{Certificates: []tls.Certificate{cert}}
	srv, err := server.New(srvCfg)
	if err != nil {
		t.Fatalf("server.New: %v", err)
	}

	srvLn, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer srvLn.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go srv.Serve(ctx, srvLn)

	cliCfg := config.DefaultClientConfig()
	cliCfg.ServerAddr = srvLn.Addr().String()
	cliCfg.Password = "pw"
	cliCfg.TLSConfig = &tls.Config{InsecureSkipVerify: true}

	c, err := client.New(cliCfg)
	if err != nil {
		t.Fatalf("client.New: %v", err)
	}
	defer c.Close()

	// Reserve a port, then close it, so the server's outbound dial is
	// refused and the failure text rides back in the SynAck payload.
	deadLn, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	deadPort := deadLn.Addr().(*net.TCPAddr).Port
	deadLn.Close()

	_, _, err = c.CreateProxyStream(context.Background(), "127.0.0.1", uint16(deadPort))
	if err == nil {
		t.Fatal("expected CreateProxyStream to surface the server's dial failure")
	}
	if !strings.Contains(err.Error(), "Server error:") {
		t.Fatalf("error %q does not carry the server's reason", err)
	}
}

func TestClientServerWrongPasswordFails(t *testing.T) {
	cert := generateTestCert(t)

	srvCfg := config.DefaultServerConfig()
	srvCfg.Password = "right"
	srvCfg.TLSConfig = &tls.Config{Certificates: []tls.Certificate{cert}}
	srv, err := server.New(srvCfg)
	if err != nil {
		t.Fatalf("server.New: %v", err)
	}

	srvLn, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer srvLn.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go srv.Serve(ctx, srvLn)

	cliCfg := config.DefaultClientConfig()
	cliCfg.ServerAddr = srvLn.Addr().String()
	cliCfg.Password = "wrong"
	cliCfg.TLSConfig = &tls.Config{InsecureSkipVerify: true}
	cliCfg.DialTimeout = 2 * time.Second

	c, err := client.New(cliCfg)
	if err != nil {
		t.Fatalf("client.New: %v", err)
	}
	defer c.Close()

	ctx2, cancel2 := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel2()
	_, _, err = c.CreateProxyStream(ctx2, "127.0.0.1", 9)
	if err == nil {
		t.Fatal("expected CreateProxyStream to fail against a wrong password")
	}
}

// Command httpcacheproxy is a MITM forward proxy that demonstrates
// the response cache core behind a real request pipeline: TLS
// interception via gomitmproxy, Cache-Control-aware storage decisions,
// TTL-based freshness checks, and a Prometheus metrics endpoint.
package main

import (
	"crypto/rsa"
	"crypto/tls"
	"crypto/x509"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/AdguardTeam/golibs/log"
	"github.com/AdguardTeam/gomitmproxy"
	"github.com/AdguardTeam/gomitmproxy/mitm"
	"github.com/AdguardTeam/gomitmproxy/proxyutil"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/bboehmke/httpcachecore/internal/config"
	"github.com/bboehmke/httpcachecore/internal/httpcache"
)

func initMitm() *mitm.Config {
	tlsCert, err := tls.LoadX509KeyPair(certPath, keyPath)
	if err != nil {
		log.Fatal(err)
	}
	privateKey := tlsCert.PrivateKey.(*rsa.PrivateKey)

	x509c, err := x509.ParseCertificate(tlsCert.Certificate[0])
	if err != nil {
		log.Fatal(err)
	}

	mitmConfig, err := mitm.NewConfig(x509c, privateKey, nil)
	if err != nil {
		log.Fatal(err)
	}

	mitmConfig.SetValidity(time.Hour * 24 * 356)
	mitmConfig.SetOrganization("httpcacheproxy")
	return mitmConfig
}

func main() {
	log.Info("Starting httpcacheproxy...")

	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}
	cfg.Print()

	ensureCA()

	cache, err := httpcache.New(cfg.CacheDir, uint64(cfg.MaxSize))
	if err != nil {
		log.Fatal(err)
	}
	defer cache.Close()

	client := http.Client{
		Transport: NewCacheTransport(cache, cfg, &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
		}),
	}

	addr, err := net.ResolveTCPAddr("tcp", cfg.ListenAddr)
	if err != nil {
		log.Fatal(err)
	}

	prometheusHandler := promhttp.Handler()

	proxy := gomitmproxy.NewProxy(gomitmproxy.Config{
		ListenAddr: addr,
		MITMConfig: initMitm(),

		OnRequest: func(session *gomitmproxy.Session) (*http.Request, *http.Response) {
			req := session.Request()

			if req.URL.Path == "/_httpcacheproxy_metrics" {
				rw := NewResponseWriter()
				prometheusHandler.ServeHTTP(rw, req)
				return nil, rw.Response(req)
			}

			if strings.HasPrefix(req.URL.Host, "127.0.0.1") || strings.HasPrefix(req.URL.Host, "localhost") {
				return nil, proxyutil.NewResponse(http.StatusNotFound, nil, req)
			}

			if req.Method != http.MethodGet {
				return nil, nil
			}
			req.RequestURI = ""

			response, err := client.Do(req)
			if err != nil {
				body := strings.NewReader(err.Error())
				res := proxyutil.NewResponse(http.StatusInternalServerError, body, req)
				return nil, res
			}
			return nil, response
		},
	})
	if err := proxy.Start(); err != nil {
		log.Fatal(err)
	}

	signalChannel := make(chan os.Signal, 1)
	signal.Notify(signalChannel, syscall.SIGINT, syscall.SIGTERM)
	<-signalChannel

	proxy.Close()
}

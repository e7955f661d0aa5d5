package transport

import (
	"crypto/tls"
	"crypto/x509"
	"os"

	"github.com/rsyslog/rsyslog-sub006/errcode"
)

// BuildTLSConfig assembles a *tls.Config from Config's certificate/CA
// material, for either a server (ClientAuth requested if AuthMode is set)
// or a client.
func BuildTLSConfig(cfg Config, isServer bool) (*tls.Config, error) {
	tlsCfg := &tls.Config{
		MinVersion: tls.VersionTLS12,
	}

	if cfg.OwnCertFile != "" && cfg.PrivKeyFile != "" {
		cert, err := tls.LoadX509KeyPair(cfg.OwnCertFile, cfg.PrivKeyFile)
		if err != nil {
			return nil, errcode.Wrap(errcode.ErrTlsSetup, err)
		}
		tlsCfg.Certificates = []tls.Certificate{cert}
	}

	if cfg.CACertFile != "" {
		pem, err := os.ReadFile(cfg.CACertFile)
		if err != nil {
			return nil, errcode.Wrap(errcode.ErrTlsSetup, err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, errcode.New(errcode.ErrTlsSetup, "no certificates parsed from caCertFile")
		}
		if isServer {
			tlsCfg.ClientCAs = pool
		} else {
			tlsCfg.RootCAs = pool
		}
	}

	if isServer {
		switch cfg.AuthMode {
		case AuthNone:
			tlsCfg.ClientAuth = tls.NoClientCert
		default:
			// fingerprint and name auth both need the peer's certificate;
			// RELP's own check (CheckPeer) validates identity, so skip
			// Go's hostname verification and require only that a
			// verified-chain-or-raw certificate is presented.
			tlsCfg.ClientAuth = tls.RequireAnyClientCert
			if cfg.CACertFile != "" {
				tlsCfg.ClientAuth = tls.RequireAndVerifyClientCert
			}
		}
	} else {
		tlsCfg.InsecureSkipVerify = cfg.AuthMode != AuthNone && cfg.CACertFile == ""
	}

	return tlsCfg, nil
}

package server

import (
	"context"
	"crypto/tls"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/mpapenbr/botrace/log"
)

type certs struct {
	ctx      context.Context
	certFile string
	keyFile  string
	log      *log.Logger
	cert     *tls.Certificate
	mu       sync.RWMutex
}

// newTLSConfig returns nil if no certificate could be loaded.
// Certificate and key are reloaded whenever one of the files changes.
func newTLSConfig(ctx context.Context, certFile, keyFile string) *tls.Config {
	c := &certs{
		ctx:      ctx,
		certFile: certFile,
		keyFile:  keyFile,
		log:      log.GetFromContext(ctx).Named("certs"),
	}
	if !c.loadCert() {
		return nil
	}
	go c.watchAndReloadCerts()
	return &tls.Config{
		GetCertificate: func(chi *tls.ClientHelloInfo) (*tls.Certificate, error) {
			c.mu.RLock()
			defer c.mu.RUnlock()
			return c.cert, nil
		},
		MinVersion: tls.VersionTLS13,
	}
}

func (c *certs) watchAndReloadCerts() {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		c.log.Error("could not create fsnotify watcher", log.ErrorField(err))
		return
	}
	defer watcher.Close()
	// directories are watched since cert managers usually replace the files
	for _, dir := range []string{filepath.Dir(c.certFile), filepath.Dir(c.keyFile)} {
		if err := watcher.Add(dir); err != nil {
			c.log.Error("could not watch cert dir", log.String("dir", dir), log.ErrorField(err))
		}
	}
	relevant := func(name string) bool {
		name = filepath.Clean(name)
		return name == filepath.Clean(c.certFile) || name == filepath.Clean(c.keyFile)
	}
	for {
		select {
		case <-c.ctx.Done():
			c.log.Info("context done, stopping cert reload")
			return
		case event, ok := <-watcher.Events:
			if !ok {
				c.log.Info("watcher events channel closed, stopping cert reload")
				return
			}
			if !relevant(event.Name) {
				continue
			}
			c.log.Debug("change detected",
				log.String("file", event.Name), log.Any("event", event))
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Chmod) {
				c.log.Info("cert file changed, reloading cert",
					log.String("file", event.Name))
				c.loadCert()
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				c.log.Info("watcher errors channel closed, stopping cert reload")
				return
			}
			c.log.Error("watcher error", log.ErrorField(err))
		}
	}
}

// loadCert keeps the previous certificate if the files can't be loaded
func (c *certs) loadCert() bool {
	c.log.Info("Loading cert",
		log.String("key", c.keyFile),
		log.String("cert", c.certFile))
	cert, err := tls.LoadX509KeyPair(c.certFile, c.keyFile)
	if err != nil {
		c.log.Error("could not load TLS key pair", log.ErrorField(err))
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cert = &cert
	return true
}

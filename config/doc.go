// Package config provides configuration loading and thread-safe access for
// the printer connectivity core.
//
// # Core Components
//
// Config: the persisted document — global options (log level, discovery
// timeout) plus the list of configured printers (ConnectionConfig).
//
// SafeConfig: thread-safe wrapper using RWMutex and deep cloning, so Get()
// always returns a copy callers cannot mutate and Update() always validates
// before swapping the document in.
//
// Manager: owns a SafeConfig backed by a YAML file on disk and exposes
// Reload() for the host shell to call on its own schedule. Unlike a
// message-bus-backed config manager, there is no live-push mechanism here —
// this domain has no message bus to push updates over.
//
// # Basic Usage
//
//	mgr, err := config.NewManager("printers.yaml")
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	cfg := mgr.Config()
//	for _, p := range cfg.Printers {
//		fmt.Println(p.Name, p.IPAddress)
//	}
//
//	// Later, after the file has changed on disk:
//	if err := mgr.Reload(); err != nil {
//		log.Printf("config reload failed, keeping previous config: %v", err)
//	}
//
// # Thread-Safe Access
//
//	safe := config.NewSafeConfig(cfg)
//	current := safe.Get() // deep copy, safe to read without locking
//
//	updated := current
//	updated.Printers = append(updated.Printers, newEntry)
//	if err := safe.Update(updated); err != nil {
//		log.Printf("rejected: %v", err)
//	}
//
// # Document shape
//
//	log_level: info
//	discovery_timeout_seconds: 5
//	printers:
//	  - name: bench-k1
//	    ip_address: 192.168.1.50
//	    proxy_enabled: true
//	    proxy_ws_port: 3031
//	    proxy_video_port: 3032
//	    access_code: "123456"
//	    is_fdm: false
//
// # Security
//
// File loading includes:
//   - File size limits (10MB max) to prevent memory exhaustion
//   - Path validation to prevent directory traversal
//   - Regular file checks (no symlinks or device files)
//   - Extension allowlist (.yaml/.yml only)
package config

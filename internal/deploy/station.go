// Package deploy manages precision capture stations over SSH or on the
// local host: installing the daemon, upgrading it in place, and keeping
// its systemd unit and tuning config in known locations.
package deploy

import "fmt"

// Station describes the filesystem layout of an installed capture
// station. Every deployment command resolves paths through a Station so
// install, upgrade, backup, and repair agree on where things live.
type Station struct {
	ServiceName string // systemd unit name, without the .service suffix
	ServiceUser string // system account the daemon runs as
	BinaryPath  string
	DataDir     string // database, capture output, and on-host backups
	ConfigDir   string
	Interface   string // capture interface written into the unit file
	ListenAddr  string // web server listen address
}

// DefaultStation returns the layout every precision host is expected to
// follow.
func DefaultStation() Station {
	return Station{
		ServiceName: "precision",
		ServiceUser: "precision",
		BinaryPath:  "/usr/local/bin/precision",
		DataDir:     "/var/lib/precision",
		ConfigDir:   "/etc/precision",
		Interface:   "eth0",
		ListenAddr:  ":8080",
	}
}

// UnitName returns the systemd unit name including the .service suffix.
func (s Station) UnitName() string {
	return s.ServiceName + ".service"
}

// UnitPath returns the installed path of the systemd unit file.
func (s Station) UnitPath() string {
	return "/etc/systemd/system/" + s.UnitName()
}

// ConfigFile returns the path of the tuning config on the station.
func (s Station) ConfigFile() string {
	return s.ConfigDir + "/tuning.json"
}

// DatabaseFile returns the path of the capture run database.
func (s Station) DatabaseFile() string {
	return s.DataDir + "/precision.db"
}

// OutputFile returns the path the daemon writes measured differences to.
func (s Station) OutputFile() string {
	return s.DataDir + "/timestamp_diffs_measured.dat"
}

// BackupDir returns the on-host directory upgrade backups are kept in.
func (s Station) BackupDir() string {
	return s.DataDir + "/backups"
}

// MigrationsDir returns the on-host schema migrations directory, when a
// release ships one.
func (s Station) MigrationsDir() string {
	return s.DataDir + "/migrations"
}

// UnitFile renders the systemd unit for the station. The daemon needs
// CAP_NET_RAW to open the capture interface without running as root.
func (s Station) UnitFile() string {
	return fmt.Sprintf(`[Unit]
Description=Precision packet arrival capture service
After=network-online.target
Wants=network-online.target

[Service]
User=%s
Group=%s
Type=simple
ExecStart=%s -iface %s -db %s -config %s -o %s -listen %s
WorkingDirectory=%s
AmbientCapabilities=CAP_NET_RAW
CapabilityBoundingSet=CAP_NET_RAW
Restart=on-failure
RestartSec=5
StandardOutput=journal
StandardError=journal
SyslogIdentifier=%s

[Install]
WantedBy=multi-user.target
`, s.ServiceUser, s.ServiceUser, s.BinaryPath, s.Interface, s.DatabaseFile(),
		s.ConfigFile(), s.OutputFile(), s.ListenAddr, s.DataDir, s.ServiceName)
}

// DefaultTuningJSON is the tuning config written at install time. It
// mirrors the compiled-in defaults so operators have a file to edit.
const DefaultTuningJSON = `{
  "burst_size": 4,
  "batch_size": 32,
  "store_capacity": 10000000,
  "snap_len": 256,
  "promiscuous": true,
  "read_timeout": "10ms",
  "link_wait": "10s",
  "bpf": "",
  "stats_interval": "5s"
}
`

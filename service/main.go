package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/sunshineplan/passportproxy"
	"github.com/sunshineplan/service"
	"github.com/sunshineplan/utils/flags"
)

var (
	host         = flag.String("host", "", "Listening host")
	port         = flag.String("port", "", "Listening port")
	target       = flag.String("target", "", "Partner server URL")
	configServer = flag.String("config-server", "", "Passport configuration server URL")
	upstream     = flag.String("upstream", "", "Upstream proxy URL")
	sessionTTL   = flag.Duration("session-ttl", passportproxy.DefaultSessionTTL, "Session lifetime")
	bodyCache    = flag.String("body-cache", "2KB", "Request body cache size")
	accesslog    = flag.String("access-log", "", "Path to access log file")
	errorlog     = flag.String("error-log", "", "Path to error log file")
	limits       = flag.String("limits", "", "Path to limits file")
	whitelist    = flag.String("whitelist", "", "Path to whitelist file")
	status       = flag.String("status", "", "Path to status file")
	keep         = flag.Int("keep", 100, "Count of status files")
	debug        = flag.Bool("debug", false, "debug")
	trace        = flag.Bool("trace", false, "trace")
)

const proxyFlag = `
proxy:
  --host <string>
    	Listening host
  --port <number>
    	Listening port (default: $PROXY_PORT or 3000)
  --target <url>
    	Partner server URL (default: $PROXY_TARGET)
  --config-server <url>
    	Passport configuration server URL (default: $CONFIGURATION_SERVER_URL or ` + passportproxy.DefaultConfigurationServer + `)
  --upstream <url>
    	Upstream proxy URL (http, https or socks5)
  --session-ttl <duration>
    	Session lifetime (default: 15m)
  --body-cache <size>
    	Request body cache size (default: 2KB)
`

// server flags
var (
	https   = flag.Bool("https", false, "Serve as HTTPS server")
	cert    = flag.String("cert", "", "Path to certificate file")
	privkey = flag.String("privkey", "", "Path to private key file")
)

const serverFlag = `
server:
  --https
    	Serve as HTTPS server
  --cert <file>
    	Path to certificate file
  --privkey <file>
    	Path to private key file
  --access-log <file>
    	Path to access log file
  --error-log <file>
    	Path to error log file
  --limits <file>
    	Path to traffic limits file
  --whitelist <file>
    	Path to whitelist file
  --status <file>
    	Path to status file
  --keep number
    	Count of status files (default: 100)
  --debug
    	Enable debug logging
  --trace
    	Log the headers of every exchanged message (implies --debug)
  --update <url>
    	Update URL
`

var svc = service.New()

func init() {
	svc.Name = "PassportProxy"
	svc.Desc = "Passport1.4 Authenticating Reverse Proxy"
	svc.Exec = run
	svc.TestExec = test
	svc.Options = service.Options{
		Dependencies: []string{"After=network.target"},
		Others:       []string{"ExecReload=kill -HUP $MAINPID"},
	}
}

func getenv(value *string, key, fallback string) {
	if *value == "" {
		*value = os.Getenv(key)
	}
	if *value == "" {
		*value = fallback
	}
}

func main() {
	self, err := os.Executable()
	if err != nil {
		log.Fatalln("Failed to get self path:", err)
	}
	recordFile = filepath.Join(filepath.Dir(self), "usage")

	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), `Usage of %s:%s%s%s`, os.Args[0], proxyFlag, serverFlag, svc.Usage())
	}
	flag.StringVar(&svc.Options.UpdateURL, "update", "", "Update URL")
	flags.SetConfigFile(filepath.Join(filepath.Dir(self), "config.ini"))
	flags.Parse()

	getenv(port, "PROXY_PORT", defaultPort)
	getenv(target, "PROXY_TARGET", "")
	getenv(configServer, "CONFIGURATION_SERVER_URL", passportproxy.DefaultConfigurationServer)
	if *limits == "" {
		*limits = filepath.Join(filepath.Dir(self), "limits")
	}
	if *whitelist == "" {
		*whitelist = filepath.Join(filepath.Dir(self), "whitelist")
	}
	if *status == "" {
		*status = filepath.Join(filepath.Dir(self), "status")
	}
	if *sessionTTL <= 0 {
		*sessionTTL = passportproxy.DefaultSessionTTL
	}

	base = NewBase(*host, *port)
	initLogger()

	if err := svc.ParseAndRun(flag.Args()); err != nil {
		svc.Fatal(err)
	}
}

package version

import "fmt"

// ServiceName — имя сервиса в логах, трейсах и User-Agent.
const ServiceName = "exopet-api"

// Заполняются при сборке: -ldflags "-X .../internal/version.version=v1.2.0 ...".
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// Build описывает собранный бинарник.
type Build struct {
	Version string
	Commit  string
	Date    string
}

func Current() Build {
	return Build{Version: version, Commit: commit, Date: date}
}

func (b Build) String() string {
	return fmt.Sprintf("%s %s (commit %s, built %s)", ServiceName, b.Version, b.Commit, b.Date)
}

func GetVersion() string { return version }

// UserAgent — заголовок User-Agent для запросов к платёжному шлюзу.
func UserAgent() string {
	return ServiceName + "/" + version
}

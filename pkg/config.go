package nxload

type Configuration struct {
	FileIn      string `json:"file_in" yaml:"file_in" env:"FILE_IN"`
	Root        string `json:"root" yaml:"root" env:"ROOT"`
	Quiet       bool   `json:"quiet" yaml:"quiet" env:"QUIET"`
	Verbosity   int    `json:"verbosity" yaml:"verbosity" env:"VERBOSITY"`
	Parallel    bool   `json:"parallel" yaml:"parallel" env:"PARALLEL"`
	NumWorkers  int    `json:"num_workers" yaml:"num_workers" env:"NUM_WORKERS"`
	NoDB        bool   `json:"no_db" yaml:"no_db" env:"NO_DB"`
	DBDriver    string `json:"db_driver" yaml:"db_driver" env:"DB_DRIVER"`
	Host        string `json:"host" yaml:"host" env:"DB_HOST"`
	User        string `json:"user" yaml:"user" env:"DB_USER"`
	Passwd      string `json:"pass" yaml:"pass" env:"DB_PASS"`
	DBName      string `json:"dbname" yaml:"dbname" env:"DB_NAME"`
	MetricsFile string `json:"metrics_file" yaml:"metrics_file" env:"METRICS_FILE"`
}

var configuration Configuration

func GetConfiguration() Configuration {
	return configuration
}

func SetConfiguration(config Configuration) {
	configuration = config
}

// bucketWorkers is the number of goroutines used to bucket banks.
func (c Configuration) bucketWorkers() int {
	if !c.Parallel || c.NumWorkers < 2 {
		return 1
	}
	return c.NumWorkers
}

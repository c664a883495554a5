package config

// Default directories and file paths for twingraph.
const (
	// DefaultConfigDir is the base directory for storing twingraph artifacts.
	DefaultConfigDir = ".twingraph"
	// DefaultConfigPath is the default config file location.
	DefaultConfigPath = "twingraph.config.json"
	// DefaultArtifactDir is the default directory for generated pipeline scripts.
	DefaultArtifactDir = DefaultConfigDir + "/artifacts"
	// DefaultSQLiteDSN is the default data source name for SQLite storage.
	DefaultSQLiteDSN = DefaultConfigDir + "/twingraph.db"
	// DefaultPipelinesDir is the default directory for pipeline YAMLs.
	DefaultPipelinesDir = "pipelines"
)

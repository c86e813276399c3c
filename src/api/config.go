package api

// ServerConfig is loaded from config.yaml and overlaid by flags in
// cmd/paystreamd.
type ServerConfig struct {
	APIPort         string `yaml:"api_port"`
	PromPort        string `yaml:"prom_port"`
	HealthCheckPort string `yaml:"health_check_port"`

	PostgresConfig  string `yaml:"postgres"`
	RedisAddress    string `yaml:"redis_address"`
	TreasuryAddress string `yaml:"treasury_address"` // source recorded on payout transfers
	DefaultOwner    string `yaml:"default_owner"`    // if set, one ledger is deployed at startup
	MockPayer       bool   `yaml:"use_mock_payer"`
}

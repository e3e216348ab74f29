package secrets

// DefaultRules returns the built-in rules, ordered roughly by how often they
// show up in database error text.
func DefaultRules() []Rule {
	return []Rule{
		// Connection strings
		{
			ID:          "dsn-password",
			Description: "Password embedded in a connection URL",
			Pattern:     `(?i)\b(?:postgres(?:ql)?|mysql|mariadb|mongodb(?:\+srv)?|redis|rediss|sqlserver|clickhouse)://[^:/\s@]+:([^@\s]+)@`,
			Severity:    "high",
		},
		{
			ID:          "go-mysql-dsn",
			Description: "Password in a go-sql-driver DSN",
			Pattern:     `\b[A-Za-z0-9_.-]+:([^@\s:/]+)@(?:tcp|unix)\(`,
			Severity:    "high",
		},
		{
			ID:          "kv-password",
			Description: "password=... in a key/value connection string",
			Pattern:     `(?i)\b(?:password|passwd|pwd)\s*=\s*'?([^\s;']+)'?`,
			Keywords:    []string{"pass", "pwd"},
			Severity:    "high",
		},

		// SQL statements
		{
			ID:          "identified-by",
			Description: "Password in CREATE/ALTER USER or GRANT",
			Pattern:     `(?i)identified\s+(?:with\s+\S+\s+)?by\s+(?:password\s+)?'([^']*)'`,
			Keywords:    []string{"identified"},
			Severity:    "high",
		},
		{
			ID:          "sql-password-literal",
			Description: "Password literal in SET PASSWORD or a WITH PASSWORD clause",
			Pattern:     `(?i)(?:set\s+password\s+(?:for\s+\S+\s+)?=|with\s+(?:encrypted\s+)?password)\s+'([^']*)'`,
			Keywords:    []string{"password"},
			Severity:    "high",
		},

		// Environment and config dumps
		{
			ID:          "env-credential",
			Description: "Environment variable with credential",
			Pattern:     `(?i)(?:^|[^A-Za-z0-9_])(?:DB_PASSWORD|DATABASE_PASSWORD|MYSQL_PASSWORD|MYSQL_ROOT_PASSWORD|POSTGRES_PASSWORD|PGPASSWORD|REDIS_PASSWORD|MONGO_PASSWORD|SECRET_KEY|AUTH_TOKEN|ACCESS_TOKEN)\s*[:=]\s*['"]?([^\s'"]{4,})['"]?`,
			Severity:    "high",
		},
		{
			ID:          "generic-api-key",
			Description: "Generic API key",
			Pattern:     `(?i)(?:api[_-]?key|apikey)\s*[:=]\s*['"]?([A-Za-z0-9_\-]{16,64})['"]?`,
			Keywords:    []string{"api", "key"},
			Severity:    "high",
		},
		{
			ID:          "generic-secret",
			Description: "Generic secret assignment",
			Pattern:     `(?i)(?:secret|password)\s*:\s*['"]?([^\s'"]{8,})['"]?`,
			Keywords:    []string{"secret", "password"},
			Severity:    "high",
		},

		// Tokens and keys
		{
			ID:          "aws-access-key-id",
			Description: "AWS access key ID",
			Pattern:     `\b(?:A3T[A-Z0-9]|AKIA|ASIA)[A-Z0-9]{16}\b`,
			Severity:    "high",
		},
		{
			ID:          "anthropic-api-key",
			Description: "Anthropic API key",
			Pattern:     `sk-ant-[A-Za-z0-9_\-]{32,}`,
			Severity:    "high",
		},
		{
			ID:          "openai-api-key",
			Description: "OpenAI API key",
			Pattern:     `sk-(?:proj-)?[A-Za-z0-9_\-]{32,}`,
			Severity:    "high",
		},
		{
			ID:          "bearer-token",
			Description: "Bearer token",
			Pattern:     `(?i)bearer\s+([A-Za-z0-9_\-\.=]{20,})`,
			Keywords:    []string{"bearer"},
			Severity:    "medium",
		},
		{
			ID:          "jwt",
			Description: "JSON Web Token",
			Pattern:     `eyJ[A-Za-z0-9_-]*\.eyJ[A-Za-z0-9_-]*\.[A-Za-z0-9_-]*`,
			Severity:    "medium",
		},
		{
			ID:          "private-key",
			Description: "PEM private key header",
			Pattern:     `-----BEGIN (?:RSA |DSA |EC |OPENSSH |ENCRYPTED )?PRIVATE KEY-----`,
			Severity:    "high",
		},
	}
}

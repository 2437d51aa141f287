package config

import (
	"fmt"
	"net/url"
	"slices"
	"strings"

	"go.uber.org/multierr"
)

// legacyDSN assembles a postgres URL from the discrete host/user/name
// variables older deployments still set.
func (db DBConfig) legacyDSN() (string, error) {
	var missing []string
	for env, value := range map[string]string{
		EnvDBHost: db.LegacyHost,
		EnvDBUser: db.LegacyUser,
		EnvDBName: db.LegacyName,
	} {
		if strings.TrimSpace(value) == "" {
			missing = append(missing, env)
		}
	}
	if len(missing) > 0 {
		slices.Sort(missing)
		return "", fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	user := url.User(db.LegacyUser)
	if db.LegacyPassword != "" {
		user = url.UserPassword(db.LegacyUser, db.LegacyPassword)
	}
	dsn := url.URL{
		Scheme: "postgres",
		User:   user,
		Host:   fmt.Sprintf("%s:%d", db.LegacyHost, db.LegacyPort),
		Path:   db.LegacyName,
	}
	if db.LegacySSLMode != "" {
		dsn.RawQuery = url.Values{"sslmode": {db.LegacySSLMode}}.Encode()
	}
	return dsn.String(), nil
}

// validate checks the settings envconfig cannot express on its own and
// reports every problem at once.
func (c *Config) validate() error {
	var errs error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = multierr.Append(errs, fmt.Errorf(format, args...))
		}
	}

	check(c.Raffle.PointsPerCurrencyUnit.IsPositive(), "%s must be positive", EnvPointsPerCurrencyUnit)
	check(!c.Raffle.WithdrawalMin.IsNegative(), "%s must not be negative", EnvWithdrawalMin)

	check(c.DB.TxAttempts >= 1, "db tx attempts must be at least 1")
	check(c.Outbox.BatchSize > 0, "outbox batch size must be positive")
	check(c.Outbox.PollIntervalMS > 0, "outbox poll interval must be positive")
	check(c.Outbox.MaxAttempts > 0, "outbox max attempts must be positive")
	check(c.Notify.MaxAttempts > 0, "notify max attempts must be positive")

	check(c.Cron.Tick > 0, "cron tick must be positive")
	check(c.Cron.DepositReconcileInterval >= c.Cron.Tick, "deposit reconcile interval %s is shorter than the cron tick %s", c.Cron.DepositReconcileInterval, c.Cron.Tick)
	check(c.Cron.OutboxRetentionInterval >= c.Cron.Tick, "outbox retention interval %s is shorter than the cron tick %s", c.Cron.OutboxRetentionInterval, c.Cron.Tick)
	check(c.Cron.DepositExpiry > c.Cron.StaleDepositAge, "deposit expiry %s must exceed stale deposit age %s", c.Cron.DepositExpiry, c.Cron.StaleDepositAge)

	limited := c.RateLimit.MoneyLimit > 0 || c.RateLimit.WebhookLimit > 0
	check(!limited || c.RateLimit.Window > 0, "rate limit window must be positive when a limit is set")

	if c.App.IsProd() {
		check(strings.TrimSpace(c.Paystack.SecretKey) != "", "%s is required in %s", EnvPaystackSecretKey, AppEnvProd)
		check(len(c.JWT.Secret) >= minProdJWTSecret, "%s must be at least %d bytes in %s", EnvJWTSecret, minProdJWTSecret, AppEnvProd)
	}

	if errs != nil {
		return fmt.Errorf("invalid config: %w", errs)
	}
	return nil
}

const minProdJWTSecret = 32

package app

import (
	"fmt"

	"github.com/redis/go-redis/v9"

	auditDomain "github.com/omarbuciofgr-sudo/birvanoio/internal/audit/domain"
	auditPersistence "github.com/omarbuciofgr-sudo/birvanoio/internal/audit/infrastructure/persistence"
	billingDomain "github.com/omarbuciofgr-sudo/birvanoio/internal/billing/domain"
	billingPersistence "github.com/omarbuciofgr-sudo/birvanoio/internal/billing/infrastructure/persistence"
	enrichmentDomain "github.com/omarbuciofgr-sudo/birvanoio/internal/enrichment/domain"
	enrichmentPersistence "github.com/omarbuciofgr-sudo/birvanoio/internal/enrichment/infrastructure/persistence"
	"github.com/omarbuciofgr-sudo/birvanoio/internal/shared/infrastructure/database"
	"github.com/omarbuciofgr-sudo/birvanoio/internal/shared/infrastructure/outbox"
)

// RepositoryFactory creates repositories for the configured database driver
// and credit store.
type RepositoryFactory struct {
	conn   database.Connection
	driver database.Driver
	redis  redis.UniversalClient
}

// NewRepositoryFactory creates a new repository factory.
func NewRepositoryFactory(conn database.Connection) *RepositoryFactory {
	return &RepositoryFactory{
		conn:   conn,
		driver: conn.Driver(),
	}
}

// WithRedis keeps the credit ledger in Redis instead of the database.
func (f *RepositoryFactory) WithRedis(client redis.UniversalClient) *RepositoryFactory {
	f.redis = client
	return f
}

// CreditRepository creates the credit ledger.
func (f *RepositoryFactory) CreditRepository() (billingDomain.CreditRepository, error) {
	if f.redis != nil {
		return billingPersistence.NewRedisCreditRepository(f.redis, billingPersistence.DefaultRedisPrefix), nil
	}
	if err := f.checkDriver(); err != nil {
		return nil, err
	}
	return billingPersistence.NewSQLCreditRepository(f.conn), nil
}

// SubscriptionRepository creates the subscription store.
func (f *RepositoryFactory) SubscriptionRepository() (billingDomain.SubscriptionRepository, error) {
	if err := f.checkDriver(); err != nil {
		return nil, err
	}
	return billingPersistence.NewSQLSubscriptionRepository(f.conn), nil
}

// RecordRepository creates the enrichment record store.
func (f *RepositoryFactory) RecordRepository() (enrichmentDomain.RecordRepository, error) {
	if err := f.checkDriver(); err != nil {
		return nil, err
	}
	return enrichmentPersistence.NewSQLRecordRepository(f.conn), nil
}

// AuditRepository creates the audit log.
func (f *RepositoryFactory) AuditRepository() (auditDomain.Repository, error) {
	if err := f.checkDriver(); err != nil {
		return nil, err
	}
	return auditPersistence.NewSQLRepository(f.conn), nil
}

// OutboxRepository creates an outbox repository for the configured driver.
func (f *RepositoryFactory) OutboxRepository() (outbox.Repository, error) {
	if err := f.checkDriver(); err != nil {
		return nil, err
	}
	return outbox.NewSQLRepository(f.conn), nil
}

func (f *RepositoryFactory) checkDriver() error {
	if !f.driver.IsValid() {
		return fmt.Errorf("unsupported driver: %s", f.driver)
	}
	return nil
}

// Driver returns the database driver type.
func (f *RepositoryFactory) Driver() database.Driver {
	return f.driver
}

// Connection returns the underlying database connection.
func (f *RepositoryFactory) Connection() database.Connection {
	return f.conn
}

package app

import (
	"context"
	"crypto/rand"
	"fmt"
	"time"

	"github.com/upb/authgate/config"
	"github.com/upb/authgate/middleware"
	"github.com/upb/authgate/repositories"
	"github.com/upb/authgate/repositories/memory"
	"github.com/upb/authgate/repositories/postgres"
	"github.com/upb/authgate/services/audit"
	"github.com/upb/authgate/services/credentials"
	"github.com/upb/authgate/services/fireprotocol"
	"github.com/upb/authgate/services/gate"
	"github.com/upb/authgate/services/opaque"
	"github.com/upb/authgate/services/principals"
	"github.com/upb/authgate/services/revocation"
	"github.com/upb/authgate/services/session"
	"go.uber.org/zap"
)

// auditStopTimeout bounds how long Close waits for queued audit events
const auditStopTimeout = 5 * time.Second

// Dependencies holds all application dependencies.
// This is the central wiring point for dependency injection.
type Dependencies struct {
	// Infrastructure
	Config *config.Config
	Logger *zap.Logger

	// RepoFactory is nil when audit logs are kept in memory
	RepoFactory *postgres.RepositoryFactory
	AuditLogs   repositories.AuditRepository

	// Credential core
	Principals  *principals.Registry
	OpaqueStore *opaque.Store
	Revocations *revocation.Registry
	Sessions    *session.Issuer
	Gate        *gate.Gate

	// Audit
	AuditService *audit.AuditService
	Events       *audit.Events

	// Facades
	Credentials    *credentials.Service
	FirePanel      *fireprotocol.Panel
	AuthMiddleware *middleware.AuthMiddleware

	stopPruner context.CancelFunc
	prunerDone <-chan struct{}
}

// NewDependencies creates and wires up all application dependencies
func NewDependencies(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Dependencies, error) {
	deps := &Dependencies{
		Config: cfg,
		Logger: logger,
	}

	if err := deps.initAuditStore(ctx, cfg); err != nil {
		return nil, fmt.Errorf("failed to initialize audit store: %w", err)
	}

	if err := deps.initAudit(cfg); err != nil {
		_ = deps.closeStore()
		return nil, fmt.Errorf("failed to start audit service: %w", err)
	}

	if err := deps.initCredentials(cfg); err != nil {
		_ = deps.Close(ctx)
		return nil, fmt.Errorf("failed to initialize credentials: %w", err)
	}

	deps.FirePanel = fireprotocol.NewPanel(logger, time.Now)

	logger.Info("all dependencies initialized successfully",
		zap.Int("principals", deps.Principals.Count()),
		zap.Int("static_tokens", deps.OpaqueStore.Len()),
		zap.String("signing_alg", deps.signingAlg()))
	return deps, nil
}

// initAuditStore selects postgres when a database is configured, memory otherwise
func (d *Dependencies) initAuditStore(ctx context.Context, cfg *config.Config) error {
	if cfg.Database == nil {
		d.AuditLogs = memory.NewAuditRepository(memory.DefaultCapacity)
		d.Logger.Info("no database configured, audit logs kept in memory")
		return nil
	}

	factory, err := postgres.NewRepositoryFactory(*cfg.Database, d.Logger)
	if err != nil {
		return fmt.Errorf("failed to create repository factory: %w", err)
	}
	if err := factory.InitSchema(ctx); err != nil {
		_ = factory.Close()
		return fmt.Errorf("failed to initialize audit schema: %w", err)
	}

	d.RepoFactory = factory
	d.AuditLogs = factory.NewRepositories().AuditLogs

	d.Logger.Info("database connection established",
		zap.String("connection", cfg.Database.LogString()))
	return nil
}

func (d *Dependencies) initAudit(cfg *config.Config) error {
	auditCfg := audit.DefaultConfig()
	auditCfg.BufferSize = cfg.Audit.BufferSize
	auditCfg.WorkerCount = cfg.Audit.WorkerCount

	d.AuditService = audit.NewAuditService(d.AuditLogs, d.Logger, auditCfg)
	if err := d.AuditService.Start(); err != nil {
		return err
	}
	d.Events = audit.NewEvents(d.AuditService, time.Now)
	return nil
}

func (d *Dependencies) initCredentials(cfg *config.Config) error {
	seeds := make([]principals.Seed, 0, len(cfg.Auth.Users))
	for _, u := range cfg.Auth.Users {
		seeds = append(seeds, principals.Seed{
			Identity: u.Identity,
			Role:     u.Role,
			Email:    u.Email,
			Secret:   u.Secret,
		})
	}
	registry, err := principals.New(seeds, principals.NewHasher(cfg.Auth.BcryptCost))
	if err != nil {
		return fmt.Errorf("principal registry: %w", err)
	}
	d.Principals = registry

	d.OpaqueStore = opaque.NewStore()
	for _, t := range cfg.Auth.StaticTokens {
		if err := d.OpaqueStore.Seed(t.Token, t.Identity, t.Role); err != nil {
			return fmt.Errorf("static token for %s: %w", t.Identity, err)
		}
	}

	d.Revocations = revocation.NewRegistry()
	pruneCtx, cancel := context.WithCancel(context.Background())
	d.stopPruner = cancel
	d.prunerDone = d.Revocations.StartPruner(pruneCtx, cfg.Auth.RevocationPrunePeriod, time.Now, d.Logger)

	key, err := loadSigningKey(cfg.Auth, d.Logger)
	if err != nil {
		return fmt.Errorf("signing key: %w", err)
	}
	d.Sessions, err = session.NewIssuer(session.Config{
		Key:        key,
		Issuer:     cfg.Auth.Issuer,
		AccessTTL:  cfg.Auth.AccessTTL,
		RefreshTTL: cfg.Auth.RefreshTTL,
	}, registry, d.Revocations)
	if err != nil {
		return fmt.Errorf("session issuer: %w", err)
	}

	d.Gate = gate.New(d.OpaqueStore, d.Sessions, gate.WithAdminOverride(cfg.Auth.AdminOverride))
	d.Credentials = credentials.NewService(registry, d.OpaqueStore, d.Sessions, d.Gate, d.Events, d.Logger)
	d.AuthMiddleware = middleware.NewAuthMiddleware(d.Credentials, d.Logger)
	return nil
}

// loadSigningKey prefers an asymmetric private key, then the HMAC secret.
// Without either it generates an ephemeral HMAC key; sessions then do not
// survive a restart. Validate rejects that case in production.
func loadSigningKey(cfg config.AuthConfig, logger *zap.Logger) (session.Key, error) {
	switch {
	case cfg.PrivateKey != "":
		return session.ParsePrivateKey(cfg.PrivateKey)
	case cfg.SigningKey != "":
		return session.NewHMACKey([]byte(cfg.SigningKey))
	default:
		secret := make([]byte, session.MinHMACKeyLength)
		if _, err := rand.Read(secret); err != nil {
			return session.Key{}, err
		}
		logger.Warn("no signing key configured, using an ephemeral key")
		return session.NewHMACKey(secret)
	}
}

func (d *Dependencies) signingAlg() string {
	if d.Sessions == nil {
		return ""
	}
	return d.Sessions.Alg()
}

func (d *Dependencies) closeStore() error {
	if d.RepoFactory == nil {
		return nil
	}
	return d.RepoFactory.Close()
}

// Close gracefully shuts down all dependencies
func (d *Dependencies) Close(ctx context.Context) error {
	d.Logger.Info("shutting down dependencies")

	var errs []error

	if d.stopPruner != nil {
		d.stopPruner()
		select {
		case <-d.prunerDone:
		case <-ctx.Done():
		}
	}

	// Flush queued audit events before the store goes away
	if d.AuditService != nil {
		if err := d.AuditService.Stop(auditStopTimeout); err != nil {
			errs = append(errs, fmt.Errorf("failed to stop audit service: %w", err))
		}
	}

	if err := d.closeStore(); err != nil {
		errs = append(errs, fmt.Errorf("failed to close database: %w", err))
	} else if d.RepoFactory != nil {
		d.Logger.Info("database connection closed")
	}

	// Sync logger
	if d.Logger != nil {
		_ = d.Logger.Sync()
	}

	if len(errs) > 0 {
		return fmt.Errorf("errors during shutdown: %v", errs)
	}

	return nil
}

package factory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"otp-auth-service/internal/audit"
	"otp-auth-service/internal/bucketing"
	"otp-auth-service/internal/client"
	"otp-auth-service/internal/config"
	"otp-auth-service/internal/email"
	"otp-auth-service/internal/handler"
	"otp-auth-service/internal/hashing"
	"otp-auth-service/internal/identity"
	"otp-auth-service/internal/ratelimit"
	redisrepo "otp-auth-service/internal/repository/redis"
	"otp-auth-service/internal/repository/scylla"
	"otp-auth-service/internal/service"
	"otp-auth-service/internal/tlsutil"
	"otp-auth-service/internal/util"
)

// Factory manages the lifecycle of all application dependencies.
type Factory struct {
	config     *config.Config
	tlsManager *tlsutil.Manager

	// Clients
	redisClient   *client.RedisClient
	scyllaClient  *scylla.ScyllaClient
	kafkaProducer *client.KafkaProducer

	// Managers
	hasher           *hashing.Hasher
	bucketingManager *bucketing.Manager

	// Repositories
	otpRepository    *scylla.OTPRepository
	deviceRepository *scylla.TrustedDeviceRepository
	eventRepository  *scylla.SecurityEventRepository
	rateLimitStore   *redisrepo.RateLimitStore

	// Services
	auditLog       *audit.Log
	limiter        *ratelimit.Limiter
	sender         email.Sender
	identityClient identity.Provider
	otpService     *service.OTPService
	accountService *service.AccountService

	closeOnce sync.Once
	closed    chan struct{}
}

// NewFactory loads configuration and initializes all application
// dependencies.
func NewFactory() (*Factory, error) {
	cfg := config.LoadConfig()

	util.Init(cfg.Environment, cfg.Logging.Level, cfg.Logging.Format)

	factory := &Factory{
		config: cfg,
		closed: make(chan struct{}),
	}

	if cfg.Server.EnableTLS {
		factory.tlsManager = tlsutil.NewManager(
			cfg.Server.CertFile,
			cfg.Server.KeyFile,
			cfg.Server.CertDir,
			util.Get(),
		)
	}

	if err := factory.initializeClients(); err != nil {
		return nil, fmt.Errorf("failed to initialize clients: %w", err)
	}

	if err := factory.initializeManagers(); err != nil {
		return nil, fmt.Errorf("failed to initialize managers: %w", err)
	}

	util.Info("Factory initialized successfully",
		util.String("environment", cfg.Environment),
		util.Bool("tls_enabled", cfg.Server.EnableTLS),
		util.Bool("kafka_enabled", cfg.Kafka.Enabled),
	)

	return factory, nil
}

// initializeClients brings up the external service clients with health
// checks. Redis and Scylla are critical in production; Kafka never blocks
// startup.
func (f *Factory) initializeClients() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var initErrors []error

	if rc, err := client.NewRedisClient(f.config, util.Get()); err != nil {
		initErrors = append(initErrors, fmt.Errorf("redis: %w", err))
	} else {
		f.redisClient = rc
		if err := f.redisClient.HealthCheck(ctx); err != nil {
			initErrors = append(initErrors, fmt.Errorf("redis health check: %w", err))
		} else {
			util.Info("Redis client initialized and healthy")
		}
	}

	if sc, err := scylla.NewScyllaClient(f.config, util.Get()); err != nil {
		initErrors = append(initErrors, fmt.Errorf("scylla: %w", err))
	} else {
		f.scyllaClient = sc
		if err := f.scyllaClient.HealthCheck(); err != nil {
			initErrors = append(initErrors, fmt.Errorf("scylla health check: %w", err))
		} else {
			util.Info("ScyllaDB client initialized and healthy")
		}
	}

	if f.config.Kafka.Enabled {
		if producer, err := client.NewKafkaProducer(f.config, util.Get()); err != nil {
			util.Warn("Kafka producer initialization failed, proceeding without Kafka", util.ErrorField(err))
		} else {
			f.kafkaProducer = producer
			util.Info("Kafka producer initialized")
		}
	}

	if len(initErrors) > 0 {
		if f.config.IsProduction() {
			return fmt.Errorf("critical service initialization failed: %v", initErrors)
		}
		for _, err := range initErrors {
			util.Warn("Service initialization warning", util.ErrorField(err))
		}
	}

	return nil
}

func (f *Factory) initializeManagers() error {
	hasher, err := hashing.NewHasher(f.config.OTP.HashAlgorithm)
	if err != nil {
		return fmt.Errorf("hasher: %w", err)
	}
	f.hasher = hasher
	f.bucketingManager = bucketing.NewManager(f.config)

	switch f.config.Email.Provider {
	case "postmark":
		sender, err := email.NewPostmarkSender(f.config.Email)
		if err != nil {
			return fmt.Errorf("email sender: %w", err)
		}
		f.sender = sender
	default:
		if f.config.IsProduction() {
			return fmt.Errorf("email sender: provider %q not usable in production", f.config.Email.Provider)
		}
		f.sender = email.NewDevSender(util.Get())
	}

	f.identityClient = identity.NewHTTPProvider(f.config.Identity, util.Get())

	return nil
}

func (f *Factory) OTPRepository() *scylla.OTPRepository {
	if f.otpRepository == nil {
		f.otpRepository = scylla.NewOTPRepository(f.scyllaClient, f.bucketingManager)
	}
	return f.otpRepository
}

func (f *Factory) TrustedDeviceRepository() *scylla.TrustedDeviceRepository {
	if f.deviceRepository == nil {
		f.deviceRepository = scylla.NewTrustedDeviceRepository(f.scyllaClient)
	}
	return f.deviceRepository
}

func (f *Factory) SecurityEventRepository() *scylla.SecurityEventRepository {
	if f.eventRepository == nil {
		f.eventRepository = scylla.NewSecurityEventRepository(f.scyllaClient, f.bucketingManager)
	}
	return f.eventRepository
}

func (f *Factory) RateLimitStore() *redisrepo.RateLimitStore {
	if f.rateLimitStore == nil {
		f.rateLimitStore = redisrepo.NewRateLimitStore(f.redisClient, f.config.RateLimit.Window)
	}
	return f.rateLimitStore
}

func (f *Factory) AuditLog() *audit.Log {
	if f.auditLog == nil {
		var publisher audit.Publisher
		if f.kafkaProducer != nil {
			publisher = f.kafkaProducer
		}
		f.auditLog = audit.NewLog(f.SecurityEventRepository(), publisher, util.Get())
	}
	return f.auditLog
}

func (f *Factory) Limiter() *ratelimit.Limiter {
	if f.limiter == nil {
		f.limiter = ratelimit.NewLimiter(
			f.RateLimitStore(),
			f.config.RateLimit.MaxAttempts,
			f.config.RateLimit.Window,
		)
	}
	return f.limiter
}

func (f *Factory) OTPService() *service.OTPService {
	if f.otpService == nil {
		f.otpService = service.NewOTPService(
			f.OTPRepository(),
			f.TrustedDeviceRepository(),
			f.AuditLog(),
			f.Limiter(),
			f.hasher,
			f.sender,
			f.identityClient,
			f.config,
			util.Get(),
		)
	}
	return f.otpService
}

func (f *Factory) AccountService() *service.AccountService {
	if f.accountService == nil {
		f.accountService = service.NewAccountService(
			f.TrustedDeviceRepository(),
			f.sender,
			f.identityClient,
			f.config,
			util.Get(),
		)
	}
	return f.accountService
}

func (f *Factory) AuthHandler() *handler.AuthHandler {
	return handler.NewAuthHandler(f.OTPService(), f.AccountService(), util.Get())
}

// HealthCheck reports the health of every initialized dependency.
func (f *Factory) HealthCheck(ctx context.Context) map[string]error {
	healthErrors := make(map[string]error)

	if f.redisClient != nil {
		if err := f.redisClient.HealthCheck(ctx); err != nil {
			healthErrors["redis"] = err
		}
	} else {
		healthErrors["redis"] = fmt.Errorf("redis client not initialized")
	}

	if f.scyllaClient != nil {
		if err := f.scyllaClient.HealthCheck(); err != nil {
			healthErrors["scylla"] = err
		}
	} else {
		healthErrors["scylla"] = fmt.Errorf("scylla client not initialized")
	}

	if f.kafkaProducer != nil {
		if err := f.kafkaProducer.HealthCheck(ctx); err != nil {
			healthErrors["kafka"] = err
		}
	}

	return healthErrors
}

// IsHealthy treats Kafka as optional.
func (f *Factory) IsHealthy(ctx context.Context) bool {
	healthErrors := f.HealthCheck(ctx)
	delete(healthErrors, "kafka")
	return len(healthErrors) == 0
}

func (f *Factory) Close() error {
	f.closeOnce.Do(func() {
		close(f.closed)
		util.Info("Shutting down factory...")

		if f.kafkaProducer != nil {
			if err := f.kafkaProducer.Close(); err != nil {
				util.Error("Failed to close Kafka producer", util.ErrorField(err))
			} else {
				util.Info("Kafka producer closed")
			}
		}

		if f.scyllaClient != nil {
			f.scyllaClient.Close()
			util.Info("ScyllaDB client closed")
		}

		if f.redisClient != nil {
			if err := f.redisClient.Close(); err != nil {
				util.Error("Failed to close Redis client", util.ErrorField(err))
			} else {
				util.Info("Redis client closed")
			}
		}

		util.Sync()
	})

	return nil
}

func (f *Factory) WaitForClose() {
	<-f.closed
}

func (f *Factory) Config() *config.Config {
	return f.config
}

func (f *Factory) TLSManager() *tlsutil.Manager {
	return f.tlsManager
}

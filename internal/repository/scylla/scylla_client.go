package scylla

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gocql/gocql"
	"go.uber.org/zap"

	"otp-auth-service/internal/config"
	"otp-auth-service/internal/util"
)

// PreparedStatements holds the statements the repositories actually use
type PreparedStatements struct {
	InsertOTP         *gocql.Query
	SelectOTPByEmail  *gocql.Query
	UpdateOTPAttempts *gocql.Query
	MarkOTPVerified   *gocql.Query

	SelectDevice     *gocql.Query
	UpsertDevice     *gocql.Query
	TouchDevice      *gocql.Query
	SelectDevicesFor *gocql.Query

	InsertSecurityEvent *gocql.Query
}

type ScyllaClient struct {
	Session      *gocql.Session
	config       *config.ScyllaConfig
	Prepared     *PreparedStatements
	prepareMutex sync.Mutex
	isPrepared   bool
}

func NewScyllaClient(cfg *config.Config, logger *zap.Logger) (*ScyllaClient, error) {
	scyllaConfig := cfg.Scylla

	cluster := gocql.NewCluster(scyllaConfig.Nodes...)
	cluster.Keyspace = scyllaConfig.Keyspace
	cluster.Consistency = gocql.LocalQuorum
	cluster.Timeout = 10 * time.Second
	cluster.ConnectTimeout = 10 * time.Second
	cluster.NumConns = 4
	cluster.SocketKeepalive = 30 * time.Second
	cluster.PageSize = 1000
	cluster.RetryPolicy = &gocql.ExponentialBackoffRetryPolicy{
		Min:        time.Second,
		Max:        10 * time.Second,
		NumRetries: 3,
	}

	if scyllaConfig.Username != "" && scyllaConfig.Password != "" {
		cluster.Authenticator = gocql.PasswordAuthenticator{
			Username: scyllaConfig.Username,
			Password: scyllaConfig.Password,
		}
	}

	session, err := cluster.CreateSession()
	if err != nil {
		return nil, fmt.Errorf("failed to create scylla session: %w", err)
	}

	client := &ScyllaClient{
		Session: session,
		config:  &scyllaConfig,
	}

	if err := client.prepareStatements(); err != nil {
		session.Close()
		return nil, fmt.Errorf("failed to prepare statements: %w", err)
	}

	util.Info("ScyllaDB client initialized with prepared statements",
		zap.Strings("nodes", scyllaConfig.Nodes),
		zap.String("keyspace", scyllaConfig.Keyspace))

	return client, nil
}

func (s *ScyllaClient) prepareStatements() error {
	s.prepareMutex.Lock()
	defer s.prepareMutex.Unlock()

	if s.isPrepared {
		return nil
	}

	prepared := &PreparedStatements{}

	prepared.InsertOTP = s.Session.Query(`
        INSERT INTO otp_codes (
            email_bucket, email, created_at, request_id, code_hash, salt,
            hash_algorithm, expires_at, attempts, verified, verified_at,
            device_fingerprint, user_agent, ip_address
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)

	prepared.SelectOTPByEmail = s.Session.Query(`
        SELECT email_bucket, email, created_at, request_id, code_hash, salt,
            hash_algorithm, expires_at, attempts, verified, verified_at,
            device_fingerprint, user_agent, ip_address
        FROM otp_codes WHERE email_bucket = ? AND email = ?`)

	prepared.UpdateOTPAttempts = s.Session.Query(`
        UPDATE otp_codes SET attempts = ?
        WHERE email_bucket = ? AND email = ? AND created_at = ? AND request_id = ?`)

	prepared.MarkOTPVerified = s.Session.Query(`
        UPDATE otp_codes SET verified = true, verified_at = ?
        WHERE email_bucket = ? AND email = ? AND created_at = ? AND request_id = ?`)

	prepared.SelectDevice = s.Session.Query(`
        SELECT user_id, device_fingerprint, device_name, user_agent,
            ip_address, created_at, last_used_at
        FROM trusted_devices WHERE user_id = ? AND device_fingerprint = ?`)

	prepared.UpsertDevice = s.Session.Query(`
        INSERT INTO trusted_devices (
            user_id, device_fingerprint, device_name, user_agent,
            ip_address, created_at, last_used_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?)`)

	prepared.TouchDevice = s.Session.Query(`
        UPDATE trusted_devices SET last_used_at = ?
        WHERE user_id = ? AND device_fingerprint = ?`)

	prepared.SelectDevicesFor = s.Session.Query(`
        SELECT user_id, device_fingerprint, device_name, user_agent,
            ip_address, created_at, last_used_at
        FROM trusted_devices WHERE user_id = ?`)

	prepared.InsertSecurityEvent = s.Session.Query(`
        INSERT INTO security_events (
            event_bucket, email, created_at, event_id, event_type,
            request_id, device_fingerprint, metadata
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)

	s.Prepared = prepared
	s.isPrepared = true

	util.Info("ScyllaDB prepared statements created successfully")
	return nil
}

func (s *ScyllaClient) Close() {
	if s.Session != nil {
		s.Session.Close()
		util.Info("ScyllaDB client closed")
	}
}

func (s *ScyllaClient) Query(stmt string, values ...interface{}) *gocql.Query {
	return s.Session.Query(stmt, values...)
}

func (s *ScyllaClient) Batch(typ gocql.BatchType) *gocql.Batch {
	return s.Session.NewBatch(typ)
}

func (s *ScyllaClient) ExecuteBatch(batch *gocql.Batch) error {
	return s.Session.ExecuteBatch(batch)
}

func (s *ScyllaClient) HealthCheck() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var clusterName string
	err := s.Session.Query(`SELECT cluster_name FROM system.local`).WithContext(ctx).Scan(&clusterName)
	if err != nil {
		return fmt.Errorf("scylla health check failed: %w", err)
	}

	util.Debug("ScyllaDB health check passed", zap.String("cluster_name", clusterName))
	return nil
}

func (s *ScyllaClient) ExecuteWithRetry(query *gocql.Query, maxRetries int) error {
	var lastErr error
	for i := 0; i <= maxRetries; i++ {
		if err := query.Exec(); err != nil {
			lastErr = err
			if i < maxRetries {
				time.Sleep(time.Duration(i+1) * 100 * time.Millisecond)
				continue
			}
		} else {
			return nil
		}
	}
	return lastErr
}

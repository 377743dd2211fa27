//go:build integration

package main_test

import (
	"context"
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	kafkamodule "github.com/testcontainers/testcontainers-go/modules/kafka"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/tablepos/service-coupon/internal/application"
	"github.com/tablepos/service-coupon/internal/config"
	couponDomain "github.com/tablepos/service-coupon/internal/domain/coupon"
	couponEvents "github.com/tablepos/service-coupon/internal/events"
	"github.com/tablepos/service-coupon/internal/platform/cache"
	"github.com/tablepos/service-coupon/internal/platform/contracts"
	"github.com/tablepos/service-coupon/internal/platform/database"
	"github.com/tablepos/service-coupon/internal/platform/kafka"
	"github.com/tablepos/service-coupon/internal/repository"
	"github.com/tablepos/service-coupon/internal/saga"
	"github.com/tablepos/service-coupon/migrations"
)

// startPostgres starts a PostgreSQL container, applies the SQL migrations and
// returns a connected GORM DB.
func startPostgres(t *testing.T) *gorm.DB {
	t.Helper()
	ctx := context.Background()

	pgContainer, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "postgres:16-alpine",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     "test",
				"POSTGRES_PASSWORD": "test",
				"POSTGRES_DB":       "test_coupon",
			},
			WaitingFor: wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err, "failed to start PostgreSQL container")
	t.Cleanup(func() {
		if err := pgContainer.Terminate(ctx); err != nil {
			t.Logf("failed to terminate PostgreSQL container: %v", err)
		}
	})

	host, err := pgContainer.Host(ctx)
	require.NoError(t, err)
	port, err := pgContainer.MappedPort(ctx, "5432")
	require.NoError(t, err)

	dbCfg := config.DatabaseConfig{
		Host:     host,
		Port:     port.Port(),
		User:     "test",
		Password: "test",
		DBName:   "test_coupon",
		SSLMode:  "disable",
	}

	logger := zap.NewNop()
	db, err := database.Connect(dbCfg.DSN(), database.DefaultPool, logger)
	require.NoError(t, err, "failed to connect to PostgreSQL")
	require.NoError(t, database.RunMigrations(dbCfg.DatabaseURL(), migrations.FS, logger), "failed to run migrations")

	return db
}

// startKafka starts a Kafka container and pre-creates the service topics.
func startKafka(t *testing.T) []string {
	t.Helper()
	ctx := context.Background()

	kafkaContainer, err := kafkamodule.Run(ctx, "confluentinc/confluent-local:7.5.0")
	require.NoError(t, err, "failed to start Kafka container")
	t.Cleanup(func() {
		if err := kafkaContainer.Terminate(ctx); err != nil {
			t.Logf("failed to terminate Kafka container: %v", err)
		}
	})

	brokers, err := kafkaContainer.Brokers(ctx)
	require.NoError(t, err, "failed to get Kafka brokers")

	createTopics(t, brokers, contracts.TopicOrderEvents, contracts.TopicCouponEvents)
	return brokers
}

// startRedis starts a redis container and returns a connected client.
func startRedis(t *testing.T) *redis.Client {
	t.Helper()
	ctx := context.Background()

	redisContainer, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(30 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err, "failed to start redis container")
	t.Cleanup(func() {
		if err := redisContainer.Terminate(ctx); err != nil {
			t.Logf("failed to terminate redis container: %v", err)
		}
	})

	endpoint, err := redisContainer.Endpoint(ctx, "")
	require.NoError(t, err)

	rdb, err := cache.Connect(ctx, cache.Options{Addr: endpoint}, zap.NewNop())
	require.NoError(t, err, "failed to connect to redis")
	t.Cleanup(func() { _ = rdb.Close() })
	return rdb
}

// couponStack holds wired-up coupon service components.
type couponStack struct {
	Repo     couponDomain.Repository
	Service  *application.CouponService
	Consumer *couponEvents.OrderEventConsumer
}

// setupCouponStack wires up the coupon service the way main does.
func setupCouponStack(t *testing.T, db *gorm.DB, brokers []string) *couponStack {
	t.Helper()
	logger, _ := zap.NewDevelopment()

	repo := repository.NewGormCouponRepository(db)
	producer := kafka.NewProducer(brokers, logger)
	t.Cleanup(func() { _ = producer.Close() })

	sagaSvc := saga.NewRedemptionSagaService(repo, producer, logger)
	svc := application.NewCouponService(repo, couponDomain.NewEvaluator(repo), sagaSvc, time.UTC, logger)

	groupID := fmt.Sprintf("test-coupon-%s", uuid.New().String()[:8])
	consumer := couponEvents.NewOrderEventConsumer(brokers, groupID, svc, logger)
	t.Cleanup(func() { _ = consumer.Close() })

	return &couponStack{Repo: repo, Service: svc, Consumer: consumer}
}

// seedCoupon inserts an active fixed-amount coupon.
func seedCoupon(t *testing.T, repo couponDomain.Repository, code string, usageLimit *int) *couponDomain.Coupon {
	t.Helper()
	now := time.Now().UTC()
	c, err := couponDomain.NewCoupon(couponDomain.Attributes{
		Code:          code,
		DiscountType:  couponDomain.DiscountTypeFixed,
		DiscountValue: decimal.NewFromInt(50),
		StartDate:     now.AddDate(0, 0, -1),
		ExpiryDate:    now.AddDate(0, 0, 1),
		UsageLimit:    usageLimit,
		IsActive:      true,
	}, uuid.New())
	require.NoError(t, err)
	require.NoError(t, repo.Save(context.Background(), c))
	return c
}

// publishTestEvent publishes a CloudEvent to Kafka.
func publishTestEvent(t *testing.T, brokers []string, topic, source, eventType string, data interface{}) {
	t.Helper()
	producer := kafka.NewProducer(brokers, zap.NewNop())
	defer func() { _ = producer.Close() }()

	ce, err := kafka.NewCloudEvent(source, eventType, data)
	require.NoError(t, err, "failed to create cloud event")
	require.NoError(t, producer.PublishEvent(context.Background(), topic, ce), "failed to publish event")
}

// waitForUsageCount polls the coupon until usage_count matches.
func waitForUsageCount(t *testing.T, repo couponDomain.Repository, id uuid.UUID, want int, timeout time.Duration) {
	t.Helper()
	require.Eventually(t, func() bool {
		c, err := repo.FindByID(context.Background(), id)
		return err == nil && c.UsageCount() == want
	}, timeout, 200*time.Millisecond, "usage_count did not reach %d", want)
}

// consumeOneEvent reads from a Kafka topic until it finds an event of the expected type.
func consumeOneEvent(t *testing.T, brokers []string, topic, expectedType string, timeout time.Duration) kafka.CloudEvent {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	reader := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:     brokers,
		GroupID:     fmt.Sprintf("test-assert-%s", uuid.New().String()[:8]),
		Topic:       topic,
		MinBytes:    1,
		MaxBytes:    10e6,
		StartOffset: kafkago.FirstOffset,
	})
	defer func() { _ = reader.Close() }()

	for {
		msg, err := reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				t.Fatalf("timed out waiting for event type %q on topic %q", expectedType, topic)
			}
			continue
		}
		ce, err := kafka.ParseCloudEvent(msg.Value)
		if err != nil {
			continue
		}
		if ce.Type == expectedType {
			return ce
		}
	}
}

// createTopics pre-creates Kafka topics so producers don't fail with "Unknown Topic".
func createTopics(t *testing.T, brokers []string, topics ...string) {
	t.Helper()
	conn, err := kafkago.Dial("tcp", brokers[0])
	require.NoError(t, err, "failed to dial Kafka for topic creation")
	defer conn.Close()

	controller, err := conn.Controller()
	require.NoError(t, err, "failed to get Kafka controller")

	controllerConn, err := kafkago.Dial("tcp", net.JoinHostPort(controller.Host, fmt.Sprintf("%d", controller.Port)))
	require.NoError(t, err, "failed to connect to Kafka controller")
	defer controllerConn.Close()

	configs := make([]kafkago.TopicConfig, len(topics))
	for i, topic := range topics {
		configs[i] = kafkago.TopicConfig{Topic: topic, NumPartitions: 1, ReplicationFactor: 1}
	}
	require.NoError(t, controllerConn.CreateTopics(configs...), "failed to create Kafka topics")

	time.Sleep(1 * time.Second)
}

package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestDockerContainerLifecycle tests starting and stopping Docker containers
func TestDockerContainerLifecycle(t *testing.T) {
	t.Run("Redis", func(t *testing.T) {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		// Start Redis container
		redisContainer, err := StartRedisContainer(ctx)
		if err != nil {
			t.Skipf("Cannot start Redis container: %v - Docker might not be available", err)
			return
		}

		// Ensure cleanup
		defer func() {
			err := redisContainer.Stop(context.Background())
			if err != nil {
				t.Logf("Warning: failed to stop Redis container: %v", err)
			}
		}()

		// Verify Redis is working
		redisClient := redis.NewClient(&redis.Options{
			Addr: "localhost:" + redisContainer.HostPort,
		})
		defer redisClient.Close()

		// Try a simple set/get operation
		testCtx, testCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer testCancel()

		// Set a value
		err = redisClient.Set(testCtx, "test-key", "test-value", 0).Err()
		require.NoError(t, err, "Failed to set Redis key")

		// Get the value back
		val, err := redisClient.Get(testCtx, "test-key").Result()
		require.NoError(t, err, "Failed to get Redis key")
		assert.Equal(t, "test-value", val, "Redis value mismatch")

		t.Logf("Redis container started successfully on port %s", redisContainer.HostPort)
	})

	// Test WithRedisOnly helper function
	t.Run("WithRedisOnly", func(t *testing.T) {
		WithRedisOnly(t, func(redisAddr string) {
			// Verify Redis connection
			client := redis.NewClient(&redis.Options{
				Addr: redisAddr,
			})
			defer client.Close()

			result, err := client.Ping(context.Background()).Result()
			require.NoError(t, err, "Failed to ping Redis")
			assert.Equal(t, "PONG", result, "Expected PONG response")

			t.Logf("Successfully tested Redis with WithRedisOnly at %s", redisAddr)
		})
	})

	// Test WithDependencies general function
	t.Run("WithDependencies_RedisOnly", func(t *testing.T) {
		WithDependencies(t, RedisOnly, func(redisAddr string) {
			client := redis.NewClient(&redis.Options{
				Addr: redisAddr,
			})
			defer client.Close()

			// Verify Redis connection
			result, err := client.Ping(context.Background()).Result()
			require.NoError(t, err, "Failed to ping Redis")
			assert.Equal(t, "PONG", result, "Expected PONG response")

			t.Logf("Successfully tested Redis with WithDependencies at %s", redisAddr)
		})
	})
}

// TestDockerContainerWithTestHelpers tests the test helper functions for working with containers
func TestDockerContainerWithTestHelpers(t *testing.T) {
	// NoDependencies helper - simplest test case
	WithDependencies(t, NoDependencies, func() {
		t.Log("This test runs with no external dependencies")
		assert.True(t, true, "Always passes")
	})
}

// TestRunIntegrationTest verifies that the RunIntegrationTest helper function works correctly
func TestRunIntegrationTest(t *testing.T) {
	// This is a simple wrapper test that ensures our function actually runs
	// We'll skip the actual Docker container starting

	// Flag to check if our test function was called
	called := false

	// Mock version of WithTestDependencies that directly calls the test function
	mockWithDependencies := func(testFunc func(redisAddr, kafkaAddr string)) {
		testFunc("redis-mock:6379", "kafka-mock:9092")
	}

	// Create a helper that uses our mock
	testHelper := func(t testing.TB, testFunc func(redisAddr, kafkaAddr string)) {
		t.Helper()
		t.Log("Running test with mock dependencies")
		mockWithDependencies(testFunc)
	}

	// Call our test with the mock helper
	testHelper(t, func(redisAddr, kafkaAddr string) {
		// Check that we got the expected addresses
		if redisAddr != "redis-mock:6379" {
			t.Errorf("Expected mock Redis address, got %s", redisAddr)
		}
		if kafkaAddr != "kafka-mock:9092" {
			t.Errorf("Expected mock Kafka address, got %s", kafkaAddr)
		}
		called = true
	})

	// Verify that our test function was called
	if !called {
		t.Error("The test function was not called")
	}
}

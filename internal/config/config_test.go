package config

import (
	"os"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Config", func() {
	var (
		tempDir    string
		configFile string
	)

	BeforeEach(func() {
		var err error
		tempDir, err = os.MkdirTemp("", "config-test")
		Expect(err).NotTo(HaveOccurred())
		configFile = filepath.Join(tempDir, "config.yaml")
	})

	AfterEach(func() {
		os.RemoveAll(tempDir)
	})

	Describe("Load", func() {
		Context("when config file exists with valid content", func() {
			BeforeEach(func() {
				validConfig := `
server:
  listen_port: "8080"
  metrics_port: "9090"

llm:
  provider: "anthropic"
  model: "claude-3-5-sonnet-20241022"
  timeout: "30s"
  retry_count: 3
  temperature: 0.3
  max_tokens: 500
  concurrency: 8

database:
  host: "db.internal"
  port: 5432
  user: "collector_user"
  database: "realestate_collector"
  ssl_mode: "disable"

orchestrator:
  worker_pool_size: 6
  job_deadline: "90s"
  retry_base: "30s"
  retry_cap: "30m"
  queue_poll_interval: "2s"

review:
  auto_approve_min_confidence: 0.9
  auto_approve_entity_types:
    - "community"
    - "builder"

logging:
  level: "info"
  format: "json"
`
				err := os.WriteFile(configFile, []byte(validConfig), 0644)
				Expect(err).NotTo(HaveOccurred())
			})

			It("should load configuration successfully", func() {
				config, err := Load(configFile)
				Expect(err).NotTo(HaveOccurred())
				Expect(config).NotTo(BeNil())

				Expect(config.Server.ListenPort).To(Equal("8080"))
				Expect(config.Server.MetricsPort).To(Equal("9090"))

				Expect(config.LLM.Provider).To(Equal("anthropic"))
				Expect(config.LLM.Model).To(Equal("claude-3-5-sonnet-20241022"))
				Expect(config.LLM.Timeout).To(Equal(30 * time.Second))
				Expect(config.LLM.RetryCount).To(Equal(3))
				Expect(config.LLM.Temperature).To(Equal(float32(0.3)))
				Expect(config.LLM.MaxTokens).To(Equal(500))
				Expect(config.LLM.Concurrency).To(Equal(8))

				Expect(config.Database.Host).To(Equal("db.internal"))
				Expect(config.Database.Database).To(Equal("realestate_collector"))

				Expect(config.Orchestrator.WorkerPoolSize).To(Equal(6))
				Expect(config.Orchestrator.JobDeadline).To(Equal(90 * time.Second))
				Expect(config.Orchestrator.RetryCap).To(Equal(30 * time.Minute))

				Expect(config.Review.AutoApproveMinConfidence).To(Equal(float32(0.9)))
				Expect(config.Review.AutoApproveEntityTypes).To(ContainElements("community", "builder"))

				Expect(config.Logging.Level).To(Equal("info"))
				Expect(config.Logging.Format).To(Equal("json"))
			})
		})

		Context("when config file has minimal content", func() {
			BeforeEach(func() {
				minimalConfig := `
server:
  listen_port: "3000"

llm:
  model: "claude-3-5-sonnet-20241022"
  provider: "anthropic"
`
				err := os.WriteFile(configFile, []byte(minimalConfig), 0644)
				Expect(err).NotTo(HaveOccurred())
			})

			It("should load with defaults for missing values", func() {
				config, err := Load(configFile)
				Expect(err).NotTo(HaveOccurred())

				Expect(config.Server.ListenPort).To(Equal("3000"))
				Expect(config.LLM.Model).To(Equal("claude-3-5-sonnet-20241022"))

				Expect(config.Orchestrator.WorkerPoolSize).To(Equal(4))
				Expect(config.Review.AutoApproveMinConfidence).To(Equal(float32(0.85)))
				Expect(config.LLM.Provider).To(Equal("anthropic"))
			})
		})

		Context("when config file does not exist", func() {
			It("should return an error", func() {
				_, err := Load("/nonexistent/config.yaml")
				Expect(err).To(HaveOccurred())
				Expect(err.Error()).To(ContainSubstring("failed to read config file"))
			})
		})

		Context("when config file has invalid YAML", func() {
			BeforeEach(func() {
				invalidConfig := `
server:
  listen_port: "8080"
  invalid_yaml: [
llm:
  endpoint: "test"
`
				err := os.WriteFile(configFile, []byte(invalidConfig), 0644)
				Expect(err).NotTo(HaveOccurred())
			})

			It("should return an error", func() {
				_, err := Load(configFile)
				Expect(err).To(HaveOccurred())
				Expect(err.Error()).To(ContainSubstring("failed to parse config file"))
			})
		})

		Context("when config has invalid duration formats", func() {
			BeforeEach(func() {
				invalidDurationConfig := `
server:
  listen_port: "8080"

llm:
  model: "test"
  provider: "anthropic"
  timeout: "invalid-duration"

orchestrator:
  job_deadline: "not-a-duration"
`
				err := os.WriteFile(configFile, []byte(invalidDurationConfig), 0644)
				Expect(err).NotTo(HaveOccurred())
			})

			It("should return an error", func() {
				_, err := Load(configFile)
				Expect(err).To(HaveOccurred())
				Expect(err.Error()).To(ContainSubstring("failed to parse config file"))
			})
		})
	})

	Describe("validate", func() {
		var config *Config

		BeforeEach(func() {
			config = &Config{
				Server: ServerConfig{
					ListenPort:  "8080",
					MetricsPort: "9090",
				},
				LLM: LLMConfig{
					Provider:    "anthropic",
					Model:       "claude-3-5-sonnet-20241022",
					Timeout:     30 * time.Second,
					RetryCount:  3,
					Temperature: 0.3,
					MaxTokens:   500,
				},
				Orchestrator: OrchestratorConfig{
					WorkerPoolSize: 4,
				},
				Review: ReviewConfig{
					AutoApproveMinConfidence: 0.85,
				},
				Logging: LoggingConfig{
					Level:  "info",
					Format: "json",
				},
			}
		})

		Context("when config is valid", func() {
			It("should pass validation", func() {
				err := validate(config)
				Expect(err).NotTo(HaveOccurred())
			})
		})

		Context("when LLM provider is invalid", func() {
			BeforeEach(func() {
				config.LLM.Provider = "invalid"
			})

			It("should return validation error", func() {
				err := validate(config)
				Expect(err).To(HaveOccurred())
				Expect(err.Error()).To(ContainSubstring("unsupported LLM provider"))
			})
		})

		Context("when LLM model is missing", func() {
			BeforeEach(func() {
				config.LLM.Model = ""
			})

			It("should return validation error", func() {
				err := validate(config)
				Expect(err).To(HaveOccurred())
				Expect(err.Error()).To(ContainSubstring("LLM model is required"))
			})
		})

		Context("when LLM temperature is out of range", func() {
			BeforeEach(func() {
				config.LLM.Temperature = 1.5
			})

			It("should return validation error", func() {
				err := validate(config)
				Expect(err).To(HaveOccurred())
				Expect(err.Error()).To(ContainSubstring("LLM temperature must be between 0.0 and 1.0"))
			})
		})

		Context("when LLM max tokens is invalid", func() {
			BeforeEach(func() {
				config.LLM.MaxTokens = 0
			})

			It("should return validation error", func() {
				err := validate(config)
				Expect(err).To(HaveOccurred())
				Expect(err.Error()).To(ContainSubstring("LLM max tokens must be greater than 0"))
			})
		})

		Context("when worker pool size is invalid", func() {
			BeforeEach(func() {
				config.Orchestrator.WorkerPoolSize = 0
			})

			It("should return validation error", func() {
				err := validate(config)
				Expect(err).To(HaveOccurred())
				Expect(err.Error()).To(ContainSubstring("worker pool size must be greater than 0"))
			})
		})

		Context("when worker pool size is negative", func() {
			BeforeEach(func() {
				config.Orchestrator.WorkerPoolSize = -1
			})

			It("should return validation error", func() {
				err := validate(config)
				Expect(err).To(HaveOccurred())
				Expect(err.Error()).To(ContainSubstring("worker pool size must be greater than 0"))
			})
		})

		Context("when auto-approve confidence is out of range", func() {
			BeforeEach(func() {
				config.Review.AutoApproveMinConfidence = 1.5
			})

			It("should return validation error", func() {
				err := validate(config)
				Expect(err).To(HaveOccurred())
				Expect(err.Error()).To(ContainSubstring("auto-approve minimum confidence must be between 0.0 and 1.0"))
			})
		})

		Context("when LLM retry count is negative", func() {
			BeforeEach(func() {
				config.LLM.RetryCount = -1
			})

			It("should pass validation", func() {
				// retry count is not range-checked; callers choose their own ceiling
				err := validate(config)
				Expect(err).NotTo(HaveOccurred())
			})
		})

		Context("when LLM timeout is negative", func() {
			BeforeEach(func() {
				config.LLM.Timeout = -1 * time.Second
			})

			It("should pass validation", func() {
				err := validate(config)
				Expect(err).NotTo(HaveOccurred())
			})
		})
	})

	Describe("loadFromEnv", func() {
		var config *Config

		BeforeEach(func() {
			config = &Config{}
			os.Clearenv()
		})

		Context("when environment variables are set", func() {
			BeforeEach(func() {
				os.Setenv("LLM_API_KEY", "sk-test-key")
				os.Setenv("LLM_MODEL", "test-model")
				os.Setenv("LLM_PROVIDER", "anthropic")
				os.Setenv("SERVER_LISTEN_PORT", "3000")
				os.Setenv("METRICS_PORT", "9999")
				os.Setenv("LOG_LEVEL", "debug")
				os.Setenv("WORKER_POOL_SIZE", "8")
			})

			AfterEach(func() {
				os.Clearenv()
			})

			It("should load values from environment", func() {
				err := loadFromEnv(config)
				Expect(err).NotTo(HaveOccurred())

				Expect(config.LLM.APIKey).To(Equal("sk-test-key"))
				Expect(config.LLM.Model).To(Equal("test-model"))
				Expect(config.LLM.Provider).To(Equal("anthropic"))
				Expect(config.Server.ListenPort).To(Equal("3000"))
				Expect(config.Server.MetricsPort).To(Equal("9999"))
				Expect(config.Logging.Level).To(Equal("debug"))
				Expect(config.Orchestrator.WorkerPoolSize).To(Equal(8))
			})
		})

		Context("when WORKER_POOL_SIZE is not a number", func() {
			BeforeEach(func() {
				os.Setenv("WORKER_POOL_SIZE", "not-a-number")
			})

			AfterEach(func() {
				os.Clearenv()
			})

			It("should return an error", func() {
				err := loadFromEnv(config)
				Expect(err).To(HaveOccurred())
				Expect(err.Error()).To(ContainSubstring("invalid WORKER_POOL_SIZE"))
			})
		})

		Context("when no environment variables are set", func() {
			It("should not modify config", func() {
				originalConfig := *config
				err := loadFromEnv(config)
				Expect(err).NotTo(HaveOccurred())
				Expect(*config).To(Equal(originalConfig))
			})
		})
	})
})

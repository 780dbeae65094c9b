package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/gofiber/contrib/swagger"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/basicauth"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/monitor"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/utils"

	"github.com/ManuelReschke/Marketly/app/controllers"
	"github.com/ManuelReschke/Marketly/app/repository"
	"github.com/ManuelReschke/Marketly/internal/pkg/apidocs"
	"github.com/ManuelReschke/Marketly/internal/pkg/cache"
	"github.com/ManuelReschke/Marketly/internal/pkg/database"
	"github.com/ManuelReschke/Marketly/internal/pkg/env"
	"github.com/ManuelReschke/Marketly/internal/pkg/events"
	"github.com/ManuelReschke/Marketly/internal/pkg/hcaptcha"
	"github.com/ManuelReschke/Marketly/internal/pkg/imagestore"
	"github.com/ManuelReschke/Marketly/internal/pkg/jobqueue"
	"github.com/ManuelReschke/Marketly/internal/pkg/mail"
	"github.com/ManuelReschke/Marketly/internal/pkg/otp"
	"github.com/ManuelReschke/Marketly/internal/pkg/payment"
	"github.com/ManuelReschke/Marketly/internal/pkg/router"
	"github.com/ManuelReschke/Marketly/internal/pkg/scheduler"
	"github.com/ManuelReschke/Marketly/internal/pkg/sms"
	"github.com/ManuelReschke/Marketly/internal/pkg/subscription"
)

// Multipart overhead on top of the 5 MB image limit.
const bodyLimit = 8 << 20

func main() {
	app, shutdown := NewApplication()

	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
		<-quit
		log.Println("Shutting down...")
		shutdown()
		if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
			log.Printf("Shutdown error: %v", err)
		}
	}()

	err := app.Listen(fmt.Sprintf("%s:%s", env.GetEnv("APP_HOST", "localhost"), env.GetEnv("APP_PORT", "4000")))
	log.Fatal(err)
}

// NewApplication wires the HTTP app and starts the background workers. The
// returned func stops the workers.
func NewApplication() (*fiber.App, func()) {
	env.SetupEnvFile()
	database.SetupDatabase()
	cache.SetupCache()

	basePath, err := apidocs.FindBasePath()
	if err != nil {
		panic("Could not find project root directory")
	}
	specPath := filepath.Join(basePath, apidocs.SpecPath)
	if _, err := apidocs.Load(context.Background(), specPath); err != nil {
		log.Fatalf("Invalid OpenAPI document: %v", err)
	}

	jwtSecret := env.GetEnv("JWT_SECRET", "")
	if jwtSecret == "" {
		log.Fatal("JWT_SECRET is required")
	}
	publicURL := strings.TrimRight(env.GetEnv("PUBLIC_DOMAIN", "http://localhost:4000"), "/")

	app := fiber.New(fiber.Config{
		BodyLimit: bodyLimit,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
			}
			name := strings.ToLower(strings.ReplaceAll(utils.StatusMessage(code), " ", "_"))
			return c.Status(code).JSON(fiber.Map{"error": name, "message": err.Error()})
		},
	})

	// recovery and logging
	app.Use(recover.New(), logger.New())

	// fiber metrics
	app.Get("/metrics", basicauth.New(basicauth.Config{
		Users: map[string]string{
			env.GetEnv("METRICS_USER", "admin"): env.GetEnv("METRICS_PASSWORD", "change-me"),
		},
	}), monitor.New())

	// static uploads when S3 is disabled
	imageCfg, err := imagestore.LoadConfig()
	if err != nil {
		log.Fatalf("Image storage: %v", err)
	}
	images, err := imagestore.New(imageCfg)
	if err != nil {
		log.Fatalf("Image storage: %v", err)
	}
	if !imageCfg.Enabled {
		app.Static(imageCfg.LocalURLPrefix, filepath.Join(basePath, imageCfg.LocalDir), fiber.Static{
			CacheDuration: 10 * time.Second,
			Compress:      false,
			MaxAge:        604800, // 7 days
		})
	}

	// SWAGGER / OPENAPI
	app.Use(swagger.New(swagger.Config{
		BasePath: "/docs/api/",
		FilePath: specPath,
		Path:     "v1",
	}))

	repository.InitializeFactory(database.GetDB())
	repos := repository.GetGlobalRepositories()

	gateway, err := payment.NewGatewayFromEnv()
	if err != nil {
		log.Fatalf("Payment gateway: %v", err)
	}

	manager := jobqueue.GetManager()
	queue := manager.GetQueue()
	publisher := events.NewPublisherFromEnv()
	mailOut, smsOut := queuedSenders(queue)

	subs := subscription.NewServiceFromDB(database.GetDB(), gateway, subscription.ConfigFromEnv(),
		subscription.WithNotifier(events.NewSubscriptionNotifier(publisher)),
		subscription.WithNotifier(jobqueue.MailNotifier{
			Mail:      mailOut,
			PublicURL: publicURL,
		}),
	)

	smsSender := sms.NewSenderFromEnv()
	manager.Configure(&jobqueue.Processors{
		Subscriptions: subs,
		Mail:          mail.SMTPSender{},
		SMS:           smsSender,
		PublicURL:     publicURL,
	})
	manager.Start()

	cron := scheduler.New(queue, scheduler.ConfigFromEnv())
	if err := cron.Start(); err != nil {
		log.Fatalf("Scheduler: %v", err)
	}

	var captcha controllers.CaptchaVerifier
	if hcaptcha.Enabled() {
		captcha = hcaptcha.Verify
	}

	// ROUTER
	router.InstallRouter(app, router.Deps{
		Repos:          repos,
		Subscriptions:  subs,
		ListingGate:    subs,
		OTP:            otp.NewRegistryFromEnv(),
		SMS:            smsOut,
		Mail:           mailOut,
		Images:         images,
		Queue:          queue,
		Captcha:        captcha,
		LimiterStorage: router.NewLimiterStorage(),
		JWTSecret:      jwtSecret,
		PublicURL:      publicURL,
		SecureCookie:   !env.IsDev(),
	})

	shutdown := func() {
		<-cron.Stop().Done()
		manager.Stop()
		publisher.Close()
	}
	return app, shutdown
}

// queuedSenders hands outbound mail and OTP codes to the job queue; the
// workers deliver them through the real senders with retries.
func queuedSenders(jobs jobqueue.Enqueuer) (mail.Sender, sms.Sender) {
	return jobqueue.MailDispatcher{Jobs: jobs}, jobqueue.SMSDispatcher{Jobs: jobs}
}

package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/tathmini/backend/apps/api/echo"
	"github.com/tathmini/backend/core"
	"github.com/tathmini/backend/core/assessment"
	"github.com/tathmini/backend/core/course"
	"github.com/tathmini/backend/core/user"
	emailsvc "github.com/tathmini/backend/services/email"
	identitysvc "github.com/tathmini/backend/services/identity"
	logsvc "github.com/tathmini/backend/services/logger"
	"github.com/tathmini/backend/storage/database"
	sqlxrepos "github.com/tathmini/backend/storage/database/sqlx"
)

func main() {
	// =========================================================================
	// Set up Dependencies

	conf := core.NewConfig(core.Getwd())

	logger := logsvc.NewRollbarLogger(
		log.New(os.Stdout, "API : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile),
		conf,
	)
	logger.Enable(!conf.Debug)

	// set up DB
	db, err := setUpDB(conf)
	if err != nil {
		logger.Fatal(fmt.Sprintf("setting up database: %v", err), err)
	}
	defer func() {
		if err = db.Close(); err != nil {
			logger.Error("closing database", err)
		}
	}()

	// set up services
	var mailSvc core.EmailService
	if conf.Debug {
		mailSvc = emailsvc.NewConsoleService(conf)
	} else {
		mailSvc = emailsvc.NewSendgridService(logger, conf)
	}

	usrSvc := user.NewService(sqlxrepos.NewUserRepository(db), mailSvc, conf)
	crsSvc := course.NewService(db, sqlxrepos.NewCourseRepository(db))
	asmtSvc := assessment.NewService(db, sqlxrepos.NewAssessmentRepository(db), crsSvc, mailSvc, conf)

	var verifier user.IdentityVerifier = identitysvc.NewAzureVerifier(conf)
	if conf.Azure.TenantID == "" {
		// no provider configured; token sign-in is disabled
		verifier = identitysvc.NewStaticVerifier()
	}

	// =========================================================================
	// Start API Service

	logger.Info(fmt.Sprintf("Application initializing : version %q", conf.Build))
	defer logger.Info("Application stopped")

	server := echoapi.NewServer(echoapi.ServerDeps{
		Conf:          conf,
		Logger:        logger,
		UserSvc:       usrSvc,
		CourseSvc:     crsSvc,
		AssessmentSvc: asmtSvc,
		Verifier:      verifier,
	})

	go server.Start()

	// =========================================================================
	// Shutdown

	select {
	case err = <-server.Errors():
		logger.Fatal(fmt.Sprintf("server error: %v", err), err)

	case sig := <-server.ShutdownSignal():
		logger.Info(fmt.Sprintf("%v: Start shutdown...", sig))

		// give outstanding requests a deadline for completion
		ctx, cancel := context.WithTimeout(context.Background(), conf.Server.ShutdownTimeout)
		defer cancel()

		// asking listener to shutdown and shed load
		if err = server.Shutdown(ctx); err != nil {
			logger.Error(fmt.Sprintf("could not stop server gracefully: %v", err), err)

			if err = server.Close(); err != nil {
				logger.Fatal(fmt.Sprintf("could not force stop server: %v", err), err)
			}
		}
	}
}

func setUpDB(conf *core.Config) (*database.DB, error) {
	if err := database.CreateIfNotExist(conf); err != nil {
		return nil, err
	}

	db, err := database.Open(conf)
	if err != nil {
		return nil, err
	}

	if err = database.Migrate(db); err != nil {
		return nil, err
	}
	return db, nil
}

package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/common-nighthawk/go-figure"

	"github.com/adamcubel/Cubel-Cloud/internal/config"
	"github.com/adamcubel/Cubel-Cloud/keycloak"
	"github.com/adamcubel/Cubel-Cloud/requests"
	"github.com/adamcubel/Cubel-Cloud/requests/pgrepo"
	"github.com/adamcubel/Cubel-Cloud/requests/repofake"
	"github.com/adamcubel/Cubel-Cloud/server"
)

func main() {
	for {
		if err := run(); err != nil {
			log.Fatalf("Error running server: %s\n", err)
			time.Sleep(1 * time.Second)
		} else {
			break
		}
	}
	log.Printf("Server stopped\n")
}

func run() (returnError error) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("Recovered from panic: %v\n", r)
			debug.PrintStack()
			returnError = errors.New("panic recovered")
		}
	}()

	c := config.New()
	displayAppname(c.GetAppName())

	store, accessRepo, registrationRepo := openWorkflowStore(c)
	if store != nil {
		defer store.Close()
	}

	options := []server.Option{}
	if store != nil {
		options = append(options, server.WithDatabase(store))
	}

	portal := server.New(c, accessRepo, registrationRepo, keycloak.New(c), options...)
	httpServer := &http.Server{Addr: c.GetPort(), Handler: portal}
	go listenAndServe(httpServer)
	waitForStopSignal()
	returnError = shutdown(httpServer)
	return returnError
}

// openWorkflowStore connects the Postgres-backed workflow store. A
// portal without database configuration still starts, with workflow
// requests held in memory for the life of the process.
func openWorkflowStore(c config.Config) (*pgrepo.Store, requests.AccessRepo, requests.RegistrationRepo) {
	settings, err := c.GetDatabaseSettings()
	if err != nil {
		log.Printf("Database not configured, workflow requests will not be persisted: %v\n", err)
		return nil, repofake.NewFakeAccessRepo(), repofake.NewFakeRegistrationRepo()
	}

	store, err := pgrepo.Open(settings)
	if err != nil {
		log.Printf("Database unavailable, workflow requests will not be persisted: %v\n", err)
		return nil, repofake.NewFakeAccessRepo(), repofake.NewFakeRegistrationRepo()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := store.EnsureSchema(ctx); err != nil {
		log.Printf("Could not ensure database schema: %v\n", err)
	}

	return store, pgrepo.NewAccessRequestRepo(store), pgrepo.NewRegistrationRequestRepo(store)
}

func listenAndServe(server *http.Server) error {
	log.Printf("Server listening on %s\n", server.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server.ListenAndServe %w", err)
	}
	return nil
}

func waitForStopSignal() {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
}

func shutdown(server *http.Server) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server.Shutdown: %w", err)
	}
	return nil
}

func displayAppname(appname string) {
	myFigure := figure.NewFigure(appname, "cybermedium", true)
	myFigure.Print()
	fmt.Println()
}

package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/cors"
	"github.com/spf13/cobra"

	"github.com/CrowderSoup/planner/database"
	"github.com/CrowderSoup/planner/handlers"
	"github.com/CrowderSoup/planner/services"
)

func serveCmd() *cobra.Command {
	var staticDir string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the planner API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			return runServe(cmd.Context(), cfg, staticDir)
		},
	}
	cmd.Flags().StringVar(&staticDir, "static", "", "directory of web assets served at / (disabled when empty)")
	return cmd
}

func runServe(ctx context.Context, cfg services.Config, staticDir string) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.InitDB(cfg.Server.DatabasePath)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer db.Close()

	authService, err := services.NewAuthService(cfg.Auth)
	if err != nil {
		return err
	}

	hub := services.NewHub()
	go hub.Run(ctx)

	scheduler := services.NewScheduler(time.UTC)
	if _, err := scheduler.ScheduleInterval(10*time.Minute, func() {
		if n := authService.PurgeExpired(); n > 0 {
			log.Printf("Purged %d expired magic links", n)
		}
	}); err != nil {
		return err
	}
	scheduler.Start()
	defer scheduler.Stop()

	r := handlers.NewRouter(handlers.Deps{
		Auth:      authService,
		Users:     database.NewUserService(db),
		Tasks:     database.NewTaskRepository(db),
		Hub:       hub,
		StaticDir: staticDir,
	})

	c := cors.New(cors.Options{
		AllowedOrigins:   cfg.Server.AllowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
	})

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      c.Handler(r),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		log.Printf("Server starting on port %s", cfg.Server.Port)
		errc <- server.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	log.Printf("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

func tokenCmd() *cobra.Command {
	var email string
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a session token for an email, creating the user if needed",
		RunE: func(cmd *cobra.Command, args []string) error {
			if email == "" {
				return errors.New("--email is required")
			}
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			db, err := database.InitDB(cfg.Server.DatabasePath)
			if err != nil {
				return err
			}
			defer db.Close()

			authService, err := services.NewAuthService(cfg.Auth)
			if err != nil {
				return err
			}
			users := database.NewUserService(db)
			ownerID, err := users.EnsureUser(cmd.Context(), email)
			if err != nil {
				return err
			}
			stored, err := users.Email(cmd.Context(), ownerID)
			if err != nil {
				return err
			}
			token, err := authService.CreateJWT(ownerID, stored)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "email of the user")
	return cmd
}

// Package api serves pipeline results as read-only JSON.
package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/amishk599/leadradar/internal/export"
	"github.com/amishk599/leadradar/internal/model"
)

// Source is where the server reads results from on every request.
type Source interface {
	DataStore(ctx context.Context) (*export.DataStore, error)
	Results(ctx context.Context, pipeline string) (map[string]model.Result, error)
}

// Server is the fiber application and its data source.
type Server struct {
	app    *fiber.App
	src    Source
	logger *slog.Logger
}

// Options tunes the HTTP server.
type Options struct {
	AccessLog io.Writer // defaults to stdout
}

// NewServer builds the app and registers its routes.
func NewServer(src Source, opts Options, log *slog.Logger) *Server {
	app := fiber.New(fiber.Config{
		AppName:               "leadradar",
		UnescapePath:          true,
		DisableStartupMessage: true,
	})

	out := opts.AccessLog
	if out == nil {
		out = os.Stdout
	}
	app.Use(recover.New())
	app.Use(logger.New(logger.Config{
		Format:     "${time} ${status} - ${method} ${path}\n",
		TimeFormat: "2006/01/02 15:04:05",
		Output:     out,
	}))

	s := &Server{app: app, src: src, logger: log}

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"status": "ok"})
	})

	v1 := app.Group("/api/v1")
	v1.Get("/companies", s.listCompanies)
	v1.Get("/companies/:name", s.getCompany)
	v1.Get("/pipelines/:pipeline/results", s.listResults)
	v1.Get("/pipelines/:pipeline/results/:key", s.getResult)

	return s
}

// App exposes the fiber app, mainly for app.Test.
func (s *Server) App() *fiber.App { return s.app }

// Listen serves on addr until Shutdown.
func (s *Server) Listen(addr string) error {
	s.logger.Info("serving results", "addr", addr)
	if err := s.app.Listen(addr); err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}
	return nil
}

// Shutdown stops accepting connections and waits for in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}

// companySummary is one row of the companies listing.
type companySummary struct {
	Name           string `json:"name"`
	Industry       string `json:"industry,omitempty"`
	Jobs           int    `json:"jobs"`
	Analyzed       int    `json:"analyzed"`
	TopJobScore    int    `json:"top_job_score"`
	TrendSignal    *int   `json:"trend_signal,omitempty"`
	NewsItems      int    `json:"news_items"`
	InterviewItems int    `json:"interview_items"`
}

func (s *Server) listCompanies(c *fiber.Ctx) error {
	ds, err := s.src.DataStore(c.UserContext())
	if err != nil {
		return s.mapErr(c, err)
	}

	rows := make([]companySummary, 0, len(ds.Companies))
	for _, name := range ds.Names() {
		cv := ds.Companies[name]
		row := companySummary{Name: cv.Name, Industry: cv.Industry, Jobs: len(cv.Jobs)}
		for _, j := range cv.Jobs {
			if j.Analysis != nil {
				row.Analyzed++
				row.TopJobScore = max(row.TopJobScore, j.Analysis.RelevanceScore)
			}
		}
		if cv.TrendsAnalysis != nil {
			v := cv.TrendsAnalysis.OverallSignalStrength
			row.TrendSignal = &v
		}
		if cv.News != nil {
			row.NewsItems = len(cv.News.Items)
		}
		if cv.Interviews != nil {
			row.InterviewItems = len(cv.Interviews.Items)
		}
		rows = append(rows, row)
	}
	return c.JSON(fiber.Map{"companies": rows, "metadata": ds.Metadata})
}

func (s *Server) getCompany(c *fiber.Ctx) error {
	ds, err := s.src.DataStore(c.UserContext())
	if err != nil {
		return s.mapErr(c, err)
	}
	cv, ok := ds.Companies[c.Params("name")]
	if !ok {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "company not found"})
	}
	return c.JSON(cv)
}

func (s *Server) listResults(c *fiber.Ctx) error {
	status := model.Status(strings.ToLower(c.Query("status")))
	if status != "" && status != model.StatusSucceeded && status != model.StatusFailed {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "status must be succeeded or failed"})
	}

	entries, err := s.src.Results(c.UserContext(), c.Params("pipeline"))
	if err != nil {
		return s.mapErr(c, err)
	}

	results := make([]model.Result, 0, len(entries))
	for _, r := range entries {
		if status != "" && r.Outcome.Status() != status {
			continue
		}
		results = append(results, r)
	}
	slices.SortFunc(results, func(a, b model.Result) int { return strings.Compare(a.Key, b.Key) })
	return c.JSON(fiber.Map{"pipeline": c.Params("pipeline"), "count": len(results), "results": results})
}

func (s *Server) getResult(c *fiber.Ctx) error {
	entries, err := s.src.Results(c.UserContext(), c.Params("pipeline"))
	if err != nil {
		return s.mapErr(c, err)
	}
	r, ok := entries[c.Params("key")]
	if !ok {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "result not found"})
	}
	return c.JSON(r)
}

func (s *Server) mapErr(c *fiber.Ctx, err error) error {
	if errors.Is(err, export.ErrUnknownPipeline) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": err.Error()})
	}
	s.logger.Error("request failed", "path", c.Path(), "error", err)
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "something went wrong"})
}

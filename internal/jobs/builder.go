package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/amishk599/leadradar/internal/model"
	"github.com/amishk599/leadradar/internal/source"
)

// BuildDocument fetches every company in order and assembles the input
// document. A failed company is recorded in its entry and does not stop the
// others. When ctx is cancelled the companies fetched so far are returned
// together with the context error.
func BuildDocument(ctx context.Context, fetcher model.JobsFetcher, companies []model.Company, logger *slog.Logger) (*source.Document, error) {
	doc := &source.Document{
		TotalCompanies: len(companies),
		FetchedAt:      time.Now().UTC().Format(time.RFC3339),
		Companies:      make([]source.CompanyEntry, 0, len(companies)),
	}

	for i, company := range companies {
		if err := ctx.Err(); err != nil {
			return doc, fmt.Errorf("fetch interrupted after %d/%d companies: %w", i, len(companies), err)
		}

		entry := source.CompanyEntry{Company: company, Jobs: []model.Job{}}
		res, err := fetcher.FetchCompanyJobs(ctx, company)
		if err != nil {
			entry.Error = err.Error()
			logger.Warn("fetch failed",
				"company", company.Name,
				"progress", fmt.Sprintf("%d/%d", i+1, len(companies)),
				"error", err,
			)
		} else {
			entry.Success = true
			entry.Jobs = res.Jobs
			entry.NbJobs = res.Total
			entry.CreditsRemaining = res.CreditsRemaining
			entry.CreditsCost = res.CreditsCost

			doc.TotalJobs += res.Total
			if res.Total > 0 {
				doc.CompaniesWithJobs++
			}
			logger.Info("fetched jobs",
				"company", company.Name,
				"progress", fmt.Sprintf("%d/%d", i+1, len(companies)),
				"jobs", res.Total,
			)
		}
		doc.Companies = append(doc.Companies, entry)
	}

	logger.Info("fetch complete",
		"companies", doc.TotalCompanies,
		"companies_with_jobs", doc.CompaniesWithJobs,
		"total_jobs", doc.TotalJobs,
	)
	return doc, nil
}

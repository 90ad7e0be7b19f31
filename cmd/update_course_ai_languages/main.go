package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"

	"gorm.io/datatypes"

	"github.com/coursegraph/catalog-backend/internal/app"
	pkgerrors "github.com/coursegraph/catalog-backend/internal/pkg/errors"
)

func main() {
	var partnerCode string
	flag.StringVar(&partnerCode, "partner", "", "partner short code whose runs to refresh")
	flag.Parse()

	if strings.TrimSpace(partnerCode) == "" {
		fmt.Println("update_course_ai_languages: -partner is required")
		os.Exit(2)
	}

	application, err := app.New()
	if err != nil {
		fmt.Printf("init app: %v\n", err)
		os.Exit(2)
	}
	defer application.Close()

	log := application.Log.With("command", "update_course_ai_languages")
	ctx := context.Background()

	partner, err := application.Repos.Lookup.PartnerByShortCode(ctx, nil, partnerCode)
	if err != nil {
		fmt.Printf("update_course_ai_languages: partner %s: %v\n", partnerCode, err)
		os.Exit(2)
	}
	if strings.TrimSpace(partner.LMSAPIURL) == "" {
		fmt.Printf("update_course_ai_languages: partner %s has no lms api url\n", partnerCode)
		os.Exit(2)
	}

	runs, err := application.Repos.CourseRun.ListOfficialByPartner(ctx, nil, partner.ID)
	if err != nil {
		log.Error("listing runs failed", "error", err)
		os.Exit(1)
	}

	updated := 0
	failed := 0
	for _, run := range runs {
		coverage, err := application.Clients.LMS.RunAILanguages(ctx, partner, run.Key)
		if err != nil {
			failed++
			log.Warn("coverage fetch failed", "run", run.Key, "error", err)
			continue
		}
		payload, err := json.Marshal(coverage)
		if err != nil {
			failed++
			log.Warn("coverage encode failed", "run", run.Key, "error", err)
			continue
		}
		updates := map[string]any{"ai_languages": datatypes.JSON(payload)}
		if err := application.Repos.CourseRun.UpdateFields(ctx, nil, run.ID, updates); err != nil {
			failed++
			log.Warn("coverage store failed", "run", run.Key, "error", err)
			continue
		}
		// Mirror onto the draft sibling so editors see current coverage.
		draft, err := application.Repos.CourseRun.GetByKey(ctx, nil, run.Key, true)
		if err != nil && !errors.Is(err, pkgerrors.ErrNotFound) {
			failed++
			log.Warn("draft lookup failed", "run", run.Key, "error", err)
			continue
		}
		if draft != nil {
			if err := application.Repos.CourseRun.UpdateFields(ctx, nil, draft.ID, updates); err != nil {
				failed++
				log.Warn("draft coverage store failed", "run", run.Key, "error", err)
				continue
			}
		}
		updated++
	}

	log.Info("ai language refresh finished", "partner", partnerCode, "updated", updated, "failed", failed)
	if failed > 0 {
		os.Exit(1)
	}
}

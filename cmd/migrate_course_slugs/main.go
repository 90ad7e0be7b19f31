package main

import (
	"context"
	"encoding/csv"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/google/uuid"

	"github.com/coursegraph/catalog-backend/internal/app"
	"github.com/coursegraph/catalog-backend/internal/services"
)

func main() {
	var csvPath string
	flag.StringVar(&csvPath, "csv", "", "path to a csv with header course_uuid,course_url_slug")
	flag.Parse()

	if strings.TrimSpace(csvPath) == "" {
		fmt.Println("migrate_course_slugs: -csv is required")
		os.Exit(2)
	}
	f, err := os.Open(csvPath)
	if err != nil {
		fmt.Printf("migrate_course_slugs: open csv: %v\n", err)
		os.Exit(2)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	header, err := reader.Read()
	if err != nil {
		fmt.Printf("migrate_course_slugs: read csv header: %v\n", err)
		os.Exit(2)
	}
	if len(header) != 2 || strings.TrimSpace(header[0]) != "course_uuid" || strings.TrimSpace(header[1]) != "course_url_slug" {
		fmt.Printf("migrate_course_slugs: unexpected csv header %v, want course_uuid,course_url_slug\n", header)
		os.Exit(2)
	}

	application, err := app.New()
	if err != nil {
		fmt.Printf("init app: %v\n", err)
		os.Exit(2)
	}
	defer application.Close()

	log := application.Log.With("command", "migrate_course_slugs")
	ctx := context.Background()

	migrated := 0
	var failures []string
	for line := 2; ; line++ {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			failures = append(failures, fmt.Sprintf("line %d: %v", line, err))
			continue
		}
		courseUUID, err := uuid.Parse(strings.TrimSpace(record[0]))
		if err != nil {
			failures = append(failures, fmt.Sprintf("line %d: bad course_uuid %q", line, record[0]))
			continue
		}
		urlSlug := strings.TrimSpace(record[1])

		_, _, err = application.Services.Drafts.PatchCourse(ctx, courseUUID, services.CoursePatch{URLSlug: &urlSlug})
		if err != nil {
			failures = append(failures, fmt.Sprintf("line %d: %s: %v", line, courseUUID, err))
			log.Warn("slug migration row failed", "course_uuid", courseUUID.String(), "url_slug", urlSlug, "error", err)
			continue
		}
		migrated++
	}

	log.Info("slug migration finished", "migrated", migrated, "failed", len(failures))
	if len(failures) > 0 {
		for _, f := range failures {
			fmt.Println(f)
		}
		os.Exit(1)
	}
}

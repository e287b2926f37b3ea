// Command certgen fills a certificate template for every recipient of a YAML
// job file and writes the results as one ZIP.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"time"

	applog "CERT-PDF/internal/logger"
	"CERT-PDF/internal/processor"
	"CERT-PDF/internal/services"

	"go.uber.org/zap"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("certgen", flag.ContinueOnError)
	fs.SetOutput(stderr)
	jobPath := fs.String("job", "job.yaml", "job file")
	outPath := fs.String("out", "constancias.zip", "output ZIP")
	templatePath := fs.String("template", "", "template PDF, overriding the job file")
	interval := fs.Duration("interval", 0, "pause between recipients")
	env := fs.String("env", "development", "logging environment")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	logger, err := applog.New(*env)
	if err != nil {
		fmt.Fprintf(stderr, "failed to build logger: %v\n", err)
		return 1
	}
	defer logger.Sync()

	job, err := loadJob(*jobPath)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}
	if *templatePath != "" {
		job.Template = *templatePath
	}
	if job.Template == "" {
		fmt.Fprintln(stderr, "no template given")
		return 1
	}
	template, err := os.ReadFile(job.Template)
	if err != nil {
		fmt.Fprintf(stderr, "%v: %v\n", processor.ErrBatchAborted, err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	gen := services.NewBatchGenerator(processor.NewRenderer(nil, logger), *interval, logger)
	recipients := append([]processor.Recipient(nil), job.Recipients...)
	services.AssignFolios(recipients, time.Now())

	report, err := gen.GenerateAll(ctx, services.BatchInput{
		Template:   template,
		Fields:     processor.ApplyAppearance(job.Fields, job.Appearance),
		Recipients: recipients,
		Course:     job.Course,
		Teams:      job.teams(),
	}, func(res processor.GenerationResult) {
		if res.OK() {
			fmt.Fprintf(stdout, "[ok]     %3d %s -> %s\n", res.Index, res.Recipient.Name, res.Certificate.Filename)
			return
		}
		fmt.Fprintf(stdout, "[failed] %3d %s: %s\n", res.Index, res.Recipient.Name, res.Error())
	})
	if err != nil {
		if errors.Is(err, processor.ErrBatchAborted) {
			fmt.Fprintln(stderr, err)
			return 1
		}
		logger.Error("Batch failed", zap.Error(err))
		return 1
	}

	var certs []processor.GeneratedCertificate
	for _, res := range report.Results {
		if res.OK() {
			certs = append(certs, *res.Certificate)
		}
	}
	if len(certs) > 0 {
		archive, err := processor.ZipAll(certs)
		if err != nil {
			fmt.Fprintf(stderr, "failed to build archive: %v\n", err)
			return 1
		}
		if err := os.WriteFile(*outPath, archive, 0644); err != nil {
			fmt.Fprintf(stderr, "failed to write archive: %v\n", err)
			return 1
		}
	}

	fmt.Fprintf(stdout, "%d generadas / %d fallidas / %d pendientes\n",
		report.Succeeded, report.Failed, report.Total-report.Succeeded-report.Failed)
	return 0
}

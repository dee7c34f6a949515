package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/noah-isme/sma-substitute-api/internal/dto"
	"github.com/noah-isme/sma-substitute-api/internal/models"
	"github.com/noah-isme/sma-substitute-api/internal/service"
	"github.com/noah-isme/sma-substitute-api/pkg/docx"
	"github.com/noah-isme/sma-substitute-api/pkg/export"
	"github.com/noah-isme/sma-substitute-api/pkg/storage"
)

func newFreeCommand(opts *options) *cobra.Command {
	var (
		day, period int
		absent      string
	)
	cmd := &cobra.Command{
		Use:   "free",
		Short: "List teachers with no lesson at a slot",
		Example: `  substitute free --assignments 配課.csv --timetable 總課表.csv --day 3 --period 3
  substitute free ... --day 3 --period 3 --absent 王小明`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := opts.load(cmd.Context())
			if err != nil {
				return err
			}
			slot := models.Slot{Day: day, Period: period}
			if !slot.Valid(s.snapshot.Periods) {
				return fmt.Errorf("%s is outside the %d-period timetable", slot, s.snapshot.Periods)
			}

			out := cmd.OutOrStdout()
			if absent != "" {
				lesson, ok := s.snapshot.Teachers.Lookup(absent, slot)
				if !ok {
					return fmt.Errorf("%s has no lesson at %s", absent, slot)
				}
				fmt.Fprintf(out, "%s teaches %s %s at %s\n", absent, lesson.ClassID, lesson.Subject, slot)
			}

			availability := service.NewAvailabilityService(s.store, s.roster, nil, 0, s.logger)
			resp, _, err := availability.Available(cmd.Context(), slot)
			if err != nil {
				return err
			}
			tw := newTable(out)
			fmt.Fprintln(tw, "#\tTEACHER")
			for i, name := range resp.Teachers {
				fmt.Fprintf(tw, "%d\t%s\n", i+1, name)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().IntVar(&day, "day", 0, "school day, 1 = Monday")
	cmd.Flags().IntVar(&period, "period", 0, "period of the day")
	cmd.Flags().StringVar(&absent, "absent", "", "absent teacher, prints the lesson to cover")
	_ = cmd.MarkFlagRequired("day")
	_ = cmd.MarkFlagRequired("period")
	return cmd
}

func newScheduleCommand(opts *options) *cobra.Command {
	var (
		teacher, classID string
		csvOutput        bool
	)
	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Print the week grid of a teacher or class",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if (teacher == "") == (classID == "") {
				return fmt.Errorf("exactly one of --teacher or --class is required")
			}
			s, err := opts.load(cmd.Context())
			if err != nil {
				return err
			}

			kind, name := dto.ScheduleKindTeacher, teacher
			if classID != "" {
				kind, name = dto.ScheduleKindClass, classID
			}
			out := cmd.OutOrStdout()
			if csvOutput {
				result, err := service.NewExportService(s.timetable, &export.CSVExporter{}, nil).Export(kind, name, service.ExportFormatCSV)
				if err != nil {
					return err
				}
				_, err = out.Write(result.Data)
				return err
			}

			var grid *dto.ScheduleGrid
			if kind == dto.ScheduleKindTeacher {
				grid, err = s.timetable.TeacherSchedule(name)
			} else {
				grid, err = s.timetable.ClassSchedule(name)
			}
			if err != nil {
				return err
			}
			dataset := service.GridDataset(grid)
			tw := newTable(out)
			fmt.Fprintln(tw, strings.Join(dataset.Headers, "\t"))
			for _, row := range dataset.Rows {
				cells := make([]string, len(dataset.Headers))
				for i, header := range dataset.Headers {
					cells[i] = flatten(row[header])
				}
				fmt.Fprintln(tw, strings.Join(cells, "\t"))
			}
			return tw.Flush()
		},
	}
	cmd.Flags().StringVar(&teacher, "teacher", "", "teacher name")
	cmd.Flags().StringVar(&classID, "class", "", "class id")
	cmd.Flags().BoolVar(&csvOutput, "csv", false, "write CSV instead of a table")
	return cmd
}

func newNoticeCommand(opts *options) *cobra.Command {
	var (
		req      dto.NoticeRequest
		kind     string
		format   string
		template string
		outDir   string
		fontPath string
		dryRun   bool
	)
	cmd := &cobra.Command{
		Use:   "notice",
		Short: "Fill the notice template for one substitution",
		Example: `  substitute notice --assignments 配課.csv --timetable 總課表.csv \
    --absent 王小明 --replacement 陳老師 --day 3 --period 3 --template 通知單.docx --out ./notices`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := opts.load(cmd.Context())
			if err != nil {
				return err
			}
			req.Kind = models.ChangeKind(strings.ToUpper(kind))
			req.Format = models.NoticeFormat(strings.ToLower(format))

			notices := service.NewNoticeService(s.store, service.NoticeDeps{
				Templates: templateFile(template),
				PDF:       export.NewPDFExporter(fontPath),
				Roster:    s.roster,
			}, service.NoticeConfig{TemplatePath: filepath.Base(template)}, s.logger)

			plan, err := notices.Plan(cmd.Context(), req)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if dryRun {
				tw := newTable(out)
				for _, tag := range sortedTags(plan.Tags) {
					if plan.Tags[tag] != "" {
						fmt.Fprintf(tw, "%s\t%s\n", tag, flatten(plan.Tags[tag]))
					}
				}
				return tw.Flush()
			}

			data, _, err := notices.Render(cmd.Context(), plan)
			if err != nil {
				return err
			}
			files, err := storage.NewLocalStorage(outDir)
			if err != nil {
				return err
			}
			if _, err := files.Save(plan.Filename, data); err != nil {
				return err
			}
			fmt.Fprintln(out, files.Path(plan.Filename))
			return nil
		},
	}
	flags := cmd.Flags()
	flags.StringVar(&req.AbsentTeacher, "absent", "", "absent teacher")
	flags.StringVar(&req.ReplacementTeacher, "replacement", "", "teacher covering the lesson")
	flags.IntVar(&req.Day, "day", 0, "school day, 1 = Monday")
	flags.IntVar(&req.Period, "period", 0, "period of the day")
	flags.StringVar(&req.ClassID, "class", "", "expected class of the lesson")
	flags.StringVar(&req.Subject, "subject", "", "expected subject of the lesson")
	flags.StringVar(&req.ReferenceDate, "date", "", "any date in the target week, YYYY-MM-DD, default today")
	flags.StringVar(&kind, "kind", string(models.ChangeKindSubstitute), "SUBSTITUTE or SWAP")
	flags.StringVar(&format, "format", string(models.NoticeFormatDOCX), "docx or pdf")
	flags.StringVar(&template, "template", "", "notice template .docx")
	flags.StringVar(&outDir, "out", ".", "directory the notice is written to")
	flags.StringVar(&fontPath, "font", "", "TTF font with CJK glyphs, needed for pdf")
	flags.BoolVar(&dryRun, "dry-run", false, "print the filled tags instead of writing a file")
	for _, name := range []string{"absent", "replacement", "day", "period"} {
		_ = cmd.MarkFlagRequired(name)
	}
	return cmd
}

func newBatchCommand(opts *options) *cobra.Command {
	var (
		requests    string
		template    string
		outDir      string
		fontPath    string
		concurrency int
	)
	cmd := &cobra.Command{
		Use:   "batch",
		Short: "Fill notices for every substitution listed in a YAML file",
		Example: `  substitute batch --assignments 配課.csv --timetable 總課表.csv \
    --requests week7.yaml --template 通知單.docx --out ./notices`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			batch, err := readBatch(requests)
			if err != nil {
				return err
			}
			s, err := opts.load(cmd.Context())
			if err != nil {
				return err
			}
			files, err := storage.NewLocalStorage(outDir)
			if err != nil {
				return err
			}
			notices := service.NewNoticeService(s.store, service.NoticeDeps{
				Templates: templateFile(template),
				Files:     files,
				PDF:       export.NewPDFExporter(fontPath),
				Roster:    s.roster,
			}, service.NoticeConfig{TemplatePath: filepath.Base(template), Concurrency: concurrency}, s.logger)

			results, err := notices.GenerateBatch(cmd.Context(), batch.Notices, "cli")
			if err != nil {
				return err
			}
			for _, res := range results {
				fmt.Fprintln(cmd.OutOrStdout(), files.Path(res.StoragePath))
			}
			return nil
		},
	}
	flags := cmd.Flags()
	flags.StringVar(&requests, "requests", "", "YAML file with a notices list")
	flags.StringVar(&template, "template", "", "notice template .docx")
	flags.StringVar(&outDir, "out", ".", "directory the notices are written to")
	flags.StringVar(&fontPath, "font", "", "TTF font with CJK glyphs, needed for pdf")
	flags.IntVar(&concurrency, "concurrency", 4, "notices rendered in parallel")
	_ = cmd.MarkFlagRequired("requests")
	return cmd
}

// readBatch loads a notices list. Kind and format are case-insensitive here, as on the notice command.
func readBatch(path string) (*dto.BatchNoticeRequest, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var batch dto.BatchNoticeRequest
	if err := yaml.Unmarshal(raw, &batch); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if len(batch.Notices) == 0 {
		return nil, fmt.Errorf("%s: no notices listed", path)
	}
	for i := range batch.Notices {
		n := &batch.Notices[i]
		n.Kind = models.ChangeKind(strings.ToUpper(string(n.Kind)))
		n.Format = models.NoticeFormat(strings.ToLower(string(n.Format)))
	}
	return &batch, nil
}

func newTagsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "tags TEMPLATE",
		Short: "List the placeholders of a notice template",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			tpl, err := docx.Open(raw)
			if err != nil {
				return fmt.Errorf("%s: %w", args[0], err)
			}
			for _, tag := range tpl.Tags() {
				fmt.Fprintln(cmd.OutOrStdout(), tag)
			}
			return nil
		},
	}
}

// templateFile serves a single template path, or nothing when none was given.
func templateFile(path string) service.TemplateSource {
	if path == "" {
		return nil
	}
	dir, err := storage.NewLocalStorage(filepath.Dir(path))
	if err != nil {
		return nil
	}
	return dir
}

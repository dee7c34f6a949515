// Package cli implements the offline substitute command: the same index, availability and
// notice code as the API, driven from local CSV files.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-substitute-api/internal/models"
	"github.com/noah-isme/sma-substitute-api/internal/service"
	"github.com/noah-isme/sma-substitute-api/pkg/logger"
	"github.com/noah-isme/sma-substitute-api/pkg/roster"
)

type options struct {
	assignments    string
	timetable      string
	classID        string
	rosterFile     string
	unknownTeacher string
	periods        int
	verbose        bool
}

// session is a timetable loaded for a single command run.
type session struct {
	store     *service.SnapshotStore
	timetable *service.TimetableService
	roster    service.RosterSource
	logger    *zap.Logger
	snapshot  *models.Snapshot
}

// NewRootCommand builds the command tree. Output goes to the command's out writer.
func NewRootCommand() *cobra.Command {
	opts := &options{}
	root := &cobra.Command{
		Use:   "substitute",
		Short: "Find free teachers and issue substitution notices from timetable files",
		Long: `substitute reads an assignment table and a master timetable, builds the
teacher and class indexes and answers questions against them.

  free     - teachers with no lesson at a slot
  schedule - week grid of a teacher or class
  notice   - fill the notice template for one substitution
  batch    - fill notices for a YAML list of substitutions
  tags     - placeholders present in a notice template`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := root.PersistentFlags()
	flags.StringVar(&opts.assignments, "assignments", "", "assignment table, CSV or TSV")
	flags.StringVar(&opts.timetable, "timetable", "", "master timetable, CSV or TSV")
	flags.StringVar(&opts.classID, "class-id", "", "class id for tables without a class column")
	flags.StringVar(&opts.rosterFile, "roster", "", "YAML file with the preferred teacher order")
	flags.StringVar(&opts.unknownTeacher, "unknown-teacher", "未知", "label for lessons with no teacher")
	flags.IntVar(&opts.periods, "periods", 8, "periods per school day")
	flags.BoolVarP(&opts.verbose, "verbose", "v", false, "log index build details to stderr")

	root.AddCommand(
		newFreeCommand(opts),
		newScheduleCommand(opts),
		newNoticeCommand(opts),
		newBatchCommand(opts),
		newTagsCommand(),
	)
	return root
}

// Execute runs the root command against os.Args.
func Execute(ctx context.Context) error {
	return NewRootCommand().ExecuteContext(ctx)
}

func (o *options) load(ctx context.Context) (*session, error) {
	if o.assignments == "" || o.timetable == "" {
		return nil, errors.New("--assignments and --timetable are required")
	}
	log, err := logger.NewCLI(o.verbose)
	if err != nil {
		return nil, err
	}

	assignments, err := decodeFile(o.assignments, func(r io.Reader) ([]models.AssignmentRecord, error) {
		return service.DecodeAssignments(r, o.classID)
	})
	if err != nil {
		return nil, err
	}
	timetable, err := decodeFile(o.timetable, func(r io.Reader) ([]models.TimetableRecord, error) {
		return service.DecodeTimetable(r, o.classID)
	})
	if err != nil {
		return nil, err
	}

	rosterSource, err := o.rosterSource()
	if err != nil {
		return nil, err
	}

	store := service.NewSnapshotStore()
	svc := service.NewTimetableService(store, nil, nil, nil, service.IndexOptions{
		Periods:        o.periods,
		UnknownTeacher: o.unknownTeacher,
	}, log)
	snapshot, err := svc.Import(ctx, assignments, timetable, false)
	if err != nil {
		return nil, err
	}
	if n := snapshot.Stats.SkippedRows; n > 0 {
		log.Warn("timetable rows skipped", zap.Int("count", n), zap.Ints("rows", snapshot.Stats.SkippedPositions))
	}
	return &session{store: store, timetable: svc, roster: rosterSource, logger: log, snapshot: snapshot}, nil
}

func decodeFile[T any](path string, decode func(io.Reader) ([]T, error)) ([]T, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close() //nolint:errcheck
	rows, err := decode(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return rows, nil
}

func (o *options) rosterSource() (service.RosterSource, error) {
	if o.rosterFile == "" {
		return nil, nil
	}
	names, err := roster.Load(o.rosterFile)
	if err != nil {
		return nil, err
	}
	return roster.Static(names), nil
}

func newTable(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
}

// flatten keeps multi-line cell text on one table row.
func flatten(value string) string {
	return strings.ReplaceAll(value, "\n", " ")
}

func sortedTags(tags map[string]string) []string {
	keys := make([]string, 0, len(tags))
	for key := range tags {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

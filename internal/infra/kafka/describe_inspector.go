package kafka

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ahrav/mongoremodel/internal/domain/migration"
)

var _ migration.OffsetInspector = (*DescribeInspector)(nil)

// Runner executes a command and returns its stdout.
type Runner func(ctx context.Context, name string, args ...string) ([]byte, error)

// ExecRunner runs the command directly, without a shell.
func ExecRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %s", filepath.Base(name), err, strings.TrimSpace(stderr.String()))
	}
	return out, nil
}

// DescribeInspector shells out to kafka-consumer-groups.sh --describe and
// parses its table.
type DescribeInspector struct {
	script    string
	bootstrap string
	run       Runner
	tracer    trace.Tracer
}

// NewDescribeInspector locates the describe tool under kafkaHome.
func NewDescribeInspector(kafkaHome string, brokers []string, run Runner, tracer trace.Tracer) *DescribeInspector {
	if run == nil {
		run = ExecRunner
	}
	return &DescribeInspector{
		script:    filepath.Join(kafkaHome, "bin", "kafka-consumer-groups.sh"),
		bootstrap: strings.Join(brokers, ","),
		run:       run,
		tracer:    tracer,
	}
}

// GroupOffsets runs the describe tool for group and parses its output.
func (d *DescribeInspector) GroupOffsets(ctx context.Context, group string) (migration.GroupOffsets, error) {
	ctx, span := d.tracer.Start(ctx, "kafka.describe.group_offsets",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String("group", group)),
	)
	defer span.End()

	out, err := d.run(ctx, d.script,
		"--bootstrap-server", d.bootstrap,
		"--describe",
		"--group", group,
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return migration.GroupOffsets{}, fmt.Errorf("describing group %s: %w", group, err)
	}

	offsets, err := ParseDescribeOutput(group, out)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return migration.GroupOffsets{}, err
	}
	return offsets, nil
}

type describeColumns struct {
	group, topic, partition, current, logEnd int
}

func (c describeColumns) width() int {
	return max(c.group, c.topic, c.partition, c.current, c.logEnd) + 1
}

func parseHeader(fields []string) (describeColumns, bool) {
	cols := describeColumns{group: -1, topic: -1, partition: -1, current: -1, logEnd: -1}
	for i, f := range fields {
		switch f {
		case "GROUP":
			cols.group = i
		case "TOPIC":
			cols.topic = i
		case "PARTITION":
			cols.partition = i
		case "CURRENT-OFFSET":
			cols.current = i
		case "LOG-END-OFFSET":
			cols.logEnd = i
		}
	}
	ok := cols.partition >= 0 && cols.current >= 0 && cols.logEnd >= 0
	return cols, ok
}

func parseOffset(s string) (int64, bool) {
	if s == "-" {
		return 0, false
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil || v < 0 {
		return 0, false
	}
	return v, true
}

// ParseDescribeOutput extracts per-partition CURRENT-OFFSET and LOG-END-OFFSET
// for group from kafka-consumer-groups.sh --describe output. Columns are
// located by header name. Rows with "-" or non-numeric offsets are skipped.
func ParseDescribeOutput(group string, out []byte) (migration.GroupOffsets, error) {
	res := migration.GroupOffsets{Group: group}

	var (
		cols    describeColumns
		haveHdr bool
	)
	sc := bufio.NewScanner(bytes.NewReader(out))
	for sc.Scan() {
		fields := strings.Fields(sc.Text())
		if len(fields) == 0 {
			continue
		}
		if c, ok := parseHeader(fields); ok {
			cols, haveHdr = c, true
			continue
		}
		if !haveHdr || len(fields) < cols.width() {
			continue
		}
		if cols.group >= 0 && fields[cols.group] != group {
			continue
		}

		partition, err := strconv.ParseInt(fields[cols.partition], 10, 32)
		if err != nil {
			continue
		}
		current, ok := parseOffset(fields[cols.current])
		if !ok {
			continue
		}
		logEnd, ok := parseOffset(fields[cols.logEnd])
		if !ok {
			continue
		}

		topic := ""
		if cols.topic >= 0 {
			topic = fields[cols.topic]
		}
		res.Set(topic, int32(partition), current, logEnd)
	}
	if err := sc.Err(); err != nil {
		return migration.GroupOffsets{}, fmt.Errorf("reading describe output: %w", err)
	}

	if res.Empty() {
		return migration.GroupOffsets{}, fmt.Errorf("group %s: %w", group, migration.ErrNoOffsets)
	}
	return res, nil
}

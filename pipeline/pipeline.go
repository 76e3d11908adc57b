// Package pipeline runs the deobfuscator over directories and URLs, writes
// the results next to a record file and mirrors them to remote storage.
package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"

	"haruki-asset-deobfuscator/config"
	"haruki-asset-deobfuscator/deobfuscator"
	"haruki-asset-deobfuscator/utils"
	"haruki-asset-deobfuscator/utils/bundle"
	"haruki-asset-deobfuscator/utils/cloud"
	harukiLogger "haruki-asset-deobfuscator/utils/logger"

	"github.com/dlclark/regexp2"
	"github.com/go-resty/resty/v2"
)

var logger = harukiLogger.NewLogger("HarukiPipeline", "INFO", nil)

// SetLogLevel adjusts the pipeline logger and the uploader logger it drives.
func SetLogLevel(level string) {
	logger.SetLevel(level)
	cloud.SetLogLevel(level)
}

func LogLevel() string {
	return logger.Level()
}

type Status string

const (
	StatusDecoded      Status = "decoded"
	StatusSkipped      Status = "skipped"
	StatusUnrecognized Status = "unrecognized"
	StatusFailed       Status = "failed"
)

// Item is the outcome for one input.
type Item struct {
	Source  string   `json:"source"`
	Status  Status   `json:"status"`
	Scheme  string   `json:"scheme,omitempty"`
	Outputs []string `json:"outputs,omitempty"`
	Error   string   `json:"error,omitempty"`
}

type Summary struct {
	Items []Item `json:"items"`
}

func (s *Summary) Count(status Status) int {
	n := 0
	for _, it := range s.Items {
		if it.Status == status {
			n++
		}
	}
	return n
}

type task struct {
	source string
	// rel is the slash separated output path below the output directory.
	rel   string
	isURL bool
}

type Pipeline struct {
	cfg               utils.HarukiPipelineConfig
	format            utils.HarukiDumpFormat
	filter            *regexp2.Regexp
	storages          []config.RemoteStorageConfig
	concurrentUploads int
	dispatcher        *deobfuscator.Dispatcher
	client            *resty.Client

	mu      sync.Mutex
	records map[string]Record
}

func New(cfg config.Config) (*Pipeline, error) {
	format, err := utils.ParseDumpFormat(cfg.Pipeline.DumpFormat)
	if err != nil {
		return nil, err
	}
	filter, err := utils.CompileNameFilter(cfg.Pipeline.NameFilter)
	if err != nil {
		return nil, err
	}
	if cfg.Pipeline.OutputDir == "" {
		return nil, fmt.Errorf("pipeline output directory is not configured")
	}
	return &Pipeline{
		cfg:               cfg.Pipeline,
		format:            format,
		filter:            filter,
		storages:          cfg.RemoteStorages,
		concurrentUploads: cfg.ConcurrentUploads,
		dispatcher:        deobfuscator.NewDispatcher(nil),
		client:            newClient(cfg.Pipeline.UserAgent, cfg.Proxy),
	}, nil
}

func IsURL(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}

func (p *Pipeline) collect(inputs []string) ([]task, error) {
	var tasks []task
	for _, in := range inputs {
		if IsURL(in) {
			u, err := url.Parse(in)
			if err != nil {
				return nil, fmt.Errorf("invalid url %s: %w", in, err)
			}
			rel := path.Clean(strings.TrimPrefix(u.Path, "/"))
			if rel == "." || rel == "" {
				rel = u.Host
			}
			if !filepath.IsLocal(filepath.FromSlash(rel)) {
				return nil, fmt.Errorf("url path of %s escapes the output directory", in)
			}
			tasks = append(tasks, task{source: in, rel: rel, isURL: true})
			continue
		}
		info, err := os.Stat(in)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			tasks = append(tasks, task{source: in, rel: filepath.Base(in)})
			continue
		}
		files, err := utils.FindFilesMatching(in, p.filter)
		if err != nil {
			return nil, err
		}
		for _, f := range files {
			rel, err := filepath.Rel(in, f)
			if err != nil {
				return nil, err
			}
			tasks = append(tasks, task{source: f, rel: filepath.ToSlash(rel)})
		}
	}
	return tasks, nil
}

// Run processes inputs (files, directories or URLs), or the configured
// input directory when inputs is empty.
func (p *Pipeline) Run(ctx context.Context, inputs []string) (*Summary, error) {
	if len(inputs) == 0 {
		if p.cfg.InputDir == "" {
			return nil, fmt.Errorf("no inputs and no input directory configured")
		}
		inputs = []string{p.cfg.InputDir}
	}
	tasks, err := p.collect(inputs)
	if err != nil {
		return nil, err
	}
	if p.records, err = loadRecords(p.cfg.RecordFile); err != nil {
		return nil, fmt.Errorf("failed to load record file: %w", err)
	}
	logger.Infof("Processing %d inputs", len(tasks))

	concurrency := p.cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 4
	}
	semaphore := make(chan struct{}, concurrency)
	items := make([]Item, len(tasks))
	started := 0
	var wg sync.WaitGroup
	for i, t := range tasks {
		select {
		case <-ctx.Done():
		case semaphore <- struct{}{}:
		}
		if ctx.Err() != nil {
			break
		}
		started++
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() { <-semaphore }()
			items[i] = p.process(ctx, t)
		}()
	}
	wg.Wait()

	if err := saveRecords(p.cfg.RecordFile, p.records); err != nil {
		logger.Errorf("Failed to save record file: %v", err)
	}
	summary := &Summary{Items: items[:started]}
	if err := ctx.Err(); err != nil {
		logger.Warnf("Run cancelled after %d of %d inputs", started, len(tasks))
		return summary, err
	}
	logger.Infof("Decoded %d, skipped %d, unrecognized %d, failed %d",
		summary.Count(StatusDecoded), summary.Count(StatusSkipped), summary.Count(StatusUnrecognized), summary.Count(StatusFailed))

	if p.cfg.UploadToCloud {
		var written []string
		for _, it := range items {
			written = append(written, it.Outputs...)
		}
		if err := cloud.UploadToAllStorages(ctx, p.storages, written, p.cfg.OutputDir, p.concurrentUploads, p.cfg.RemoveLocal); err != nil {
			return summary, err
		}
	}
	return summary, nil
}

func (p *Pipeline) read(ctx context.Context, t task) ([]byte, error) {
	if t.isURL {
		return fetch(ctx, p.client, t.source)
	}
	return os.ReadFile(t.source)
}

func (p *Pipeline) process(ctx context.Context, t task) Item {
	item := Item{Source: t.source}
	fail := func(err error) Item {
		logger.Errorf("Failed to process %s: %v", t.source, err)
		item.Status = StatusFailed
		item.Error = err.Error()
		return item
	}

	data, err := p.read(ctx, t)
	if err != nil {
		return fail(err)
	}
	source := digest(data)
	p.mu.Lock()
	prev, seen := p.records[t.source]
	p.mu.Unlock()
	if seen && prev.Source == source && !p.cfg.Overwrite {
		logger.Debugf("Skipping unchanged %s", t.source)
		item.Status = StatusSkipped
		item.Scheme = prev.Scheme
		return item
	}

	base := filepath.Join(p.cfg.OutputDir, filepath.FromSlash(t.rel))
	res, err := p.dispatcher.Dispatch(bytes.NewReader(data), path.Base(t.rel))
	if err != nil {
		return fail(err)
	}
	if !res.Recognized() {
		item.Status = StatusUnrecognized
		if p.cfg.KeepUnrecognized {
			if err := writeFile(base, data); err != nil {
				return fail(err)
			}
			item.Outputs = append(item.Outputs, base)
		}
		logger.Infof("No scheme recognized %s", t.source)
		return item
	}
	item.Scheme = res.SchemeName()

	record := Record{Scheme: item.Scheme, Source: source, Size: res.Output.Size}
	var container *bundle.File
	if res.Output.Structured() {
		container = res.Output.Bundle
		dumpPath, err := writeDump(item.Scheme, container, base, p.format)
		if err != nil {
			return fail(err)
		}
		item.Outputs = append(item.Outputs, dumpPath)
	} else {
		out, err := res.Output.Bytes()
		if err != nil {
			return fail(err)
		}
		if err := writeFile(base, out); err != nil {
			return fail(err)
		}
		item.Outputs = append(item.Outputs, base)
		record.Blake3 = digest(out)
		if p.cfg.ExportEntries {
			if container, err = bundle.Load(bytes.NewReader(out)); err != nil {
				logger.Warnf("Decoded %s but could not read its entries: %v", t.source, err)
				container = nil
			}
		}
	}
	if p.cfg.ExportEntries && container != nil {
		exported, err := exportEntries(container, base+"_entries")
		item.Outputs = append(item.Outputs, exported...)
		if err != nil {
			return fail(err)
		}
	}

	p.mu.Lock()
	p.records[t.source] = record
	p.mu.Unlock()
	item.Status = StatusDecoded
	logger.Infof("Decoded %s with %s", t.source, item.Scheme)
	return item
}

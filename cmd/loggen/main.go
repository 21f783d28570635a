package main

import (
	"bufio"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/brianvoe/gofakeit/v6"

	"github.com/therealutkarshpriyadarshi/logscope/internal/logging"
)

const timestampLayout = "02/Jan/2006:15:04:05 -0700"

var (
	lines          = flag.Int("lines", 10000, "Number of lines to generate")
	output         = flag.String("output", "", "Output file (default: stdout)")
	malformedRatio = flag.Float64("malformed", 0.05, "Fraction of lines that are malformed")
	attackRatio    = flag.Float64("attacks", 0.02, "Fraction of requests with suspicious paths")
	clients        = flag.Int("clients", 200, "Number of distinct client addresses")
	span           = flag.Duration("span", 24*time.Hour, "Time covered by the log")
	seed           = flag.Int64("seed", 0, "Random seed (0 picks one from the clock)")
)

var pages = []string{
	"/", "/index.html", "/about", "/products", "/products/42", "/cart", "/checkout",
	"/api/v1/items", "/api/v1/orders", "/static/app.js", "/static/style.css", "/favicon.ico",
}

var attackPaths = []string{
	"/shell.php", "/wp-admin/", "/administrator/index", "/config.bak", "/db.old",
	"/search?q=union+select+password+from+users", "/?q=<script>alert(1)</script>",
}

var statusCodes = []int{200, 200, 200, 200, 200, 201, 204, 301, 302, 304, 400, 401, 403, 404, 404, 500, 502, 503}

// Config controls one generation run
type Config struct {
	Lines          int
	MalformedRatio float64
	AttackRatio    float64
	Clients        int
	Span           time.Duration
	End            time.Time
	Seed           int64
}

// Stats counts what was written
type Stats struct {
	Lines     int
	Malformed int
	Attacks   int
}

func main() {
	flag.Parse()

	logger := logging.New(logging.Config{
		Level:  "info",
		Format: "console",
	})

	if err := run(logger); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(logger *logging.Logger) error {
	var w io.Writer = os.Stdout
	if *output != "" {
		f, err := os.Create(*output)
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		defer f.Close()
		w = f
	}

	s := *seed
	if s == 0 {
		s = time.Now().UnixNano()
	}

	start := time.Now()
	stats, err := Generate(w, Config{
		Lines:          *lines,
		MalformedRatio: *malformedRatio,
		AttackRatio:    *attackRatio,
		Clients:        *clients,
		Span:           *span,
		End:            time.Now(),
		Seed:           s,
	})
	if err != nil {
		return err
	}

	logger.Info().
		Int("lines", stats.Lines).
		Int("malformed", stats.Malformed).
		Int("attacks", stats.Attacks).
		Int64("seed", s).
		Dur("duration", time.Since(start)).
		Msg("Log generated")
	return nil
}

// Generate writes cfg.Lines combined-format lines to w in time order
func Generate(w io.Writer, cfg Config) (Stats, error) {
	if cfg.Lines < 0 {
		return Stats{}, fmt.Errorf("line count must not be negative: %d", cfg.Lines)
	}
	if cfg.MalformedRatio < 0 || cfg.MalformedRatio > 1 {
		return Stats{}, fmt.Errorf("malformed ratio must be between 0 and 1: %v", cfg.MalformedRatio)
	}
	if cfg.Clients <= 0 {
		cfg.Clients = 1
	}
	if cfg.End.IsZero() {
		cfg.End = time.Now()
	}

	faker := gofakeit.New(cfg.Seed)

	ips := make([]string, cfg.Clients)
	for i := range ips {
		ips[i] = faker.IPv4Address()
	}
	agents := make([]string, 20)
	for i := range agents {
		agents[i] = faker.UserAgent()
	}

	bw := bufio.NewWriter(w)
	var stats Stats

	begin := cfg.End.Add(-cfg.Span)

	for i := 0; i < cfg.Lines; i++ {
		ts := cfg.End
		if cfg.Lines > 1 {
			ts = begin.Add(time.Duration(float64(cfg.Span) * float64(i) / float64(cfg.Lines-1)))
		}

		path := pages[faker.Number(0, len(pages)-1)]
		if faker.Float64Range(0, 1) < cfg.AttackRatio {
			path = attackPaths[faker.Number(0, len(attackPaths)-1)]
			stats.Attacks++
		}

		line := fmt.Sprintf(`%s - - [%s] "%s %s HTTP/1.1" %d %d "%s" "%s"`,
			ips[faker.Number(0, len(ips)-1)],
			ts.Format(timestampLayout),
			faker.RandomString([]string{"GET", "GET", "GET", "POST", "PUT", "DELETE", "HEAD"}),
			path,
			statusCodes[faker.Number(0, len(statusCodes)-1)],
			faker.Number(0, 50000),
			faker.RandomString([]string{"-", "https://" + faker.DomainName() + "/"}),
			agents[faker.Number(0, len(agents)-1)],
		)

		if faker.Float64Range(0, 1) < cfg.MalformedRatio {
			line = corrupt(faker, line)
			stats.Malformed++
		}

		if _, err := bw.WriteString(line + "\n"); err != nil {
			return stats, fmt.Errorf("failed to write line: %w", err)
		}
		stats.Lines++
	}

	if err := bw.Flush(); err != nil {
		return stats, fmt.Errorf("failed to flush output: %w", err)
	}
	return stats, nil
}

// corrupt damages a valid line so the parser rejects it
func corrupt(faker *gofakeit.Faker, line string) string {
	switch faker.Number(0, 4) {
	case 0:
		return strings.ReplaceAll(line, `"`, "")
	case 1:
		return strings.Replace(line, "[", "", 1)
	case 2:
		return "999." + line
	case 3:
		return line[:len(line)/3]
	default:
		return faker.Sentence(8)
	}
}

package main

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/poiesic/plexrec/config"
	"github.com/poiesic/plexrec/metadata"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"
)

const moviesCSV = `title,description,genres,rating,year
Inception,A thief steals secrets through dreams,Sci-Fi,8.8,2010
Interstellar,Explorers travel through a wormhole,Sci-Fi,8.6,2014
Heat,A detective hunts a crew of thieves,Crime,8.3,1995
Ronin,Mercenaries chase a briefcase,Crime,,1998
`

type harness struct {
	dataDir string
	config  string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "movies.csv"), []byte(moviesCSV), 0o644))
	return &harness{
		dataDir: dir,
		config:  filepath.Join(dir, "config.yml"),
	}
}

func (h *harness) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	app := newApp()
	var out, errOut bytes.Buffer
	app.Writer = &out
	app.ErrWriter = &errOut
	full := append([]string{"plexrec", "--log-level", "error", "--config", h.config, "--data-dir", h.dataDir}, args...)
	err := app.Run(full)
	return out.String(), err
}

func TestRecommendCommand(t *testing.T) {
	h := newHarness(t)

	out, err := h.run(t, "recommend", "-k", "2", "heat")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 2)
	assert.NotContains(t, out, "Heat (1995)")
	assert.True(t, strings.HasPrefix(lines[0], " 1. "))

	out, err = h.run(t, "history", "--limit", "10")
	require.NoError(t, err)
	assert.Len(t, strings.Split(strings.TrimSpace(out), "\n"), 2, "top selections are recorded")
	assert.Contains(t, out, `"heat"`)

	_, err = h.run(t, "recommend", "--no-history", "inception")
	require.NoError(t, err)
	out, err = h.run(t, "history")
	require.NoError(t, err)
	assert.NotContains(t, out, "inception")
}

func TestRecommendCommand_Errors(t *testing.T) {
	h := newHarness(t)

	_, err := h.run(t, "recommend")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "query is required")

	_, err = h.run(t, "recommend", "--kind", "books", "x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid catalog kind")

	_, err = h.run(t, "recommend", "--kind", "anime", "akira")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "catalog unavailable")
}

func TestSimilarCommand(t *testing.T) {
	h := newHarness(t)

	out, err := h.run(t, "similar", "--item", "0", "-k", "3")
	require.NoError(t, err)
	assert.NotContains(t, out, "Inception")
	assert.Len(t, strings.Split(strings.TrimSpace(out), "\n"), 3)

	_, err = h.run(t, "similar", "--item", "9")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "out of range")

	_, err = h.run(t, "similar")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "item")
}

func TestListingCommands(t *testing.T) {
	h := newHarness(t)

	out, err := h.run(t, "alltime", "-k", "2")
	require.NoError(t, err)
	assert.Equal(t, " 1. Inception (2010)  rating 8.8\n 2. Interstellar (2014)  rating 8.6\n", out)

	out, err = h.run(t, "popular", "-k", "1")
	require.NoError(t, err)
	assert.Contains(t, out, "Inception")

	out, err = h.run(t, "preview", "-n", "10")
	require.NoError(t, err)
	assert.Contains(t, out, " 4. Ronin (1998)\n")
}

func TestSearchCommand_RequiresKey(t *testing.T) {
	h := newHarness(t)
	t.Setenv("TMDB_API_KEY", "")

	_, err := h.run(t, "search", "heat")
	assert.ErrorIs(t, err, metadata.ErrNoAPIKey)
	assert.Contains(t, err.Error(), "config set-key")

	_, err = h.run(t, "search")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "query is required")
}

func TestRebuildAndCleanCommands(t *testing.T) {
	h := newHarness(t)

	out, err := h.run(t, "rebuild")
	require.NoError(t, err)
	assert.Contains(t, out, "rebuilt movies")
	assert.Contains(t, out, "skipped anime")
	assert.FileExists(t, filepath.Join(h.dataDir, "embeddings", "movies_emb.bin"))

	out, err = h.run(t, "rebuild", "--kind", "movies")
	require.NoError(t, err)
	assert.Equal(t, "rebuilt movies\n", out)

	out, err = h.run(t, "clean", "--kind", "movies")
	require.NoError(t, err)
	assert.Contains(t, out, "movies: 4 rows")

	_, err = h.run(t, "clean", "--kind", "books")
	assert.Error(t, err)
}

func TestConfigSetKeyCommand(t *testing.T) {
	h := newHarness(t)

	out, err := h.run(t, "config", "set-key", "TMDB_API_KEY", "secret")
	require.NoError(t, err)
	assert.Contains(t, out, "tmdb_api_key")

	cfg, err := config.Load(h.config, filepath.Join(h.dataDir, "missing.env"))
	require.NoError(t, err)
	assert.Equal(t, "secret", cfg.APIKeys.TMDB)

	_, err = h.run(t, "config", "set-key", "github_token", "x")
	assert.ErrorIs(t, err, config.ErrUnknownAPIKey)

	_, err = h.run(t, "config", "set-key", "only-name")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "NAME VALUE")
}

func TestCommandFlags(t *testing.T) {
	app := newApp()

	find := func(name string) *cli.Command {
		for _, cmd := range app.Commands {
			if cmd.Name == name {
				return cmd
			}
		}
		return nil
	}

	t.Run("top defaults to 10 with alias -k", func(t *testing.T) {
		cmd := find("recommend")
		require.NotNil(t, cmd)
		var top *cli.IntFlag
		for _, flag := range cmd.Flags {
			if f, ok := flag.(*cli.IntFlag); ok && f.Name == "top" {
				top = f
			}
		}
		require.NotNil(t, top)
		assert.Equal(t, 10, top.Value)
		assert.Equal(t, []string{"k"}, top.Aliases)
	})

	t.Run("kind defaults to movies", func(t *testing.T) {
		cmd := find("popular")
		require.NotNil(t, cmd)
		var kind *cli.StringFlag
		for _, flag := range cmd.Flags {
			if f, ok := flag.(*cli.StringFlag); ok && f.Name == "kind" {
				kind = f
			}
		}
		require.NotNil(t, kind)
		assert.Equal(t, "movies", kind.Value)
		assert.Empty(t, kind.EnvVars)
	})

	t.Run("config defaults to the settings path", func(t *testing.T) {
		var cfg *cli.StringFlag
		for _, flag := range app.Flags {
			if f, ok := flag.(*cli.StringFlag); ok && f.Name == "config" {
				cfg = f
			}
		}
		require.NotNil(t, cfg)
		assert.Equal(t, config.DefaultPath, cfg.Value)
	})

	t.Run("every command is registered", func(t *testing.T) {
		for _, name := range []string{"recommend", "similar", "popular", "search", "alltime", "preview", "rebuild", "history", "clean", "config", "serve"} {
			assert.NotNil(t, find(name), name)
		}
	})
}

func TestSetupLogger(t *testing.T) {
	t.Run("valid log levels", func(t *testing.T) {
		testCases := []struct {
			input    string
			expected slog.Level
		}{
			{"debug", slog.LevelDebug},
			{"info", slog.LevelInfo},
			{"warn", slog.LevelWarn},
			{"error", slog.LevelError},
		}

		for _, tc := range testCases {
			t.Run(tc.input, func(t *testing.T) {
				app := &cli.App{
					Name: "test",
					Flags: []cli.Flag{
						&cli.StringFlag{
							Name:  "log-level",
							Value: tc.input,
						},
					},
					Before: setupLogger,
					Action: func(c *cli.Context) error {
						assert.True(t, slog.Default().Enabled(c.Context, tc.expected))
						return nil
					},
				}

				err := app.Run([]string{"test", "--log-level", tc.input})
				require.NoError(t, err)
			})
		}
	})

	t.Run("case insensitive log levels", func(t *testing.T) {
		for _, tc := range []string{"DEBUG", "Info", "WaRn", "ERROR"} {
			t.Run(tc, func(t *testing.T) {
				app := &cli.App{
					Name: "test",
					Flags: []cli.Flag{
						&cli.StringFlag{
							Name:  "log-level",
							Value: "info",
						},
					},
					Before: setupLogger,
					Action: func(c *cli.Context) error {
						return nil
					},
				}

				err := app.Run([]string{"test", "--log-level", tc})
				require.NoError(t, err)
			})
		}
	})

	t.Run("invalid log level returns error", func(t *testing.T) {
		app := &cli.App{
			Name: "test",
			Flags: []cli.Flag{
				&cli.StringFlag{
					Name:  "log-level",
					Value: "info",
				},
			},
			Before: setupLogger,
			Action: func(c *cli.Context) error {
				return nil
			},
		}

		err := app.Run([]string{"test", "--log-level", "invalid"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid log level")
	})

	t.Run("log-level flag has alias -l", func(t *testing.T) {
		app := newApp()
		app.Commands = nil
		app.Action = func(c *cli.Context) error {
			assert.Equal(t, "debug", c.String("log-level"))
			return nil
		}

		err := app.Run([]string{"plexrec", "-l", "debug"})
		require.NoError(t, err)
	})
}

package main

import (
	"bufio"
	"fmt"
	"io"
	"log"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/glizzus/chime-off/internal/app"
	"github.com/glizzus/chime-off/internal/chime"
	"github.com/glizzus/chime-off/internal/config"
	"github.com/glizzus/chime-off/internal/player"
	"github.com/glizzus/chime-off/internal/presenters"
	"github.com/glizzus/chime-off/internal/schedule"
	"github.com/glizzus/chime-off/internal/settings"
	"github.com/glizzus/chime-off/internal/sounds"
	"github.com/urfave/cli/v2"
)

// env holds what every command works against, opened in Before.
type env struct {
	cfg      *config.ChimeConfig
	backends *app.Backends
	catalog  *sounds.Catalog
	location *time.Location
	now      func() time.Time
}

func (e *env) clock() time.Time {
	return e.now().In(e.location)
}

func (e *env) printStatus(c *cli.Context) error {
	st, err := settings.Load(c.Context, e.backends.KV)
	if err != nil {
		return cli.Exit("Failed to read settings: "+err.Error(), 1)
	}
	fmt.Fprintln(c.App.Writer, presenters.Summary(chime.Preview(st, e.clock())))
	return nil
}

func (e *env) save(c *cli.Context, patch settings.Patch) error {
	if err := patch.Validate(); err != nil {
		return cli.Exit(err.Error(), 1)
	}
	if err := settings.Save(c.Context, e.backends.KV, patch); err != nil {
		return cli.Exit("Failed to save settings: "+err.Error(), 1)
	}
	return e.printStatus(c)
}

func minutesArg(c *cli.Context) (int, error) {
	if c.NArg() != 1 {
		return 0, cli.Exit("Expected exactly one interval in minutes", 1)
	}
	minutes, ok := schedule.ParseMinutes(c.Args().First())
	if !ok {
		return 0, cli.Exit(fmt.Sprintf("%q is not a positive number of minutes", c.Args().First()), 1)
	}
	return minutes, nil
}

// audioTypes covers extensions the system mime table often lacks.
var audioTypes = map[string]string{
	".ogg":  "audio/ogg",
	".opus": "audio/opus",
	".mp3":  "audio/mpeg",
	".wav":  "audio/wav",
	".flac": "audio/flac",
	".m4a":  "audio/mp4",
}

func detectContentType(path string, data []byte) string {
	ext := strings.ToLower(filepath.Ext(path))
	if t, ok := audioTypes[ext]; ok {
		return t
	}
	if t := mime.TypeByExtension(ext); t != "" {
		return t
	}
	return http.DetectContentType(data)
}

func newApp(out io.Writer, now func() time.Time) *cli.App {
	e := &env{now: now}

	return &cli.App{
		Name:        "chime",
		Usage:       "Configure the chime daemon",
		Description: "A development CLI that edits the settings the chime daemon reads",
		Writer:      out,
		Before: func(c *cli.Context) error {
			if err := app.LoadEnv(); err != nil {
				return err
			}
			cfg, err := config.NewChimeConfigFromEnv()
			if err != nil {
				return cli.Exit("Invalid configuration: "+err.Error(), 1)
			}
			if err := app.SetupLogging(cfg); err != nil {
				return err
			}
			if e.location, err = cfg.Location(); err != nil {
				return err
			}
			e.cfg = cfg
			if e.backends, err = app.Open(c.Context, cfg); err != nil {
				return cli.Exit("Failed to open backends: "+err.Error(), 1)
			}
			if e.catalog, err = e.backends.Catalog(cfg); err != nil {
				return cli.Exit("Failed to load sounds: "+err.Error(), 1)
			}
			return nil
		},
		After: func(c *cli.Context) error {
			if e.backends == nil {
				return nil
			}
			return e.backends.Close()
		},
		Commands: []*cli.Command{
			{
				Name:  "status",
				Usage: "Show whether the chime is on and when it rings next",
				Action: func(c *cli.Context) error {
					return e.printStatus(c)
				},
			},
			{
				Name:  "on",
				Usage: "Turn the chime on",
				Action: func(c *cli.Context) error {
					return e.save(c, settings.Patch{Active: settings.Ptr(true)})
				},
			},
			{
				Name:  "off",
				Usage: "Turn the chime off",
				Action: func(c *cli.Context) error {
					return e.save(c, settings.Patch{Active: settings.Ptr(false)})
				},
			},
			{
				Name:      "every",
				Usage:     "Ring on every multiple of MINUTES within the hour",
				ArgsUsage: "MINUTES",
				Action: func(c *cli.Context) error {
					minutes, err := minutesArg(c)
					if err != nil {
						return err
					}
					return e.save(c, settings.Patch{
						Mode:          settings.Ptr(schedule.ModePeriodic),
						PeriodMinutes: &minutes,
					})
				},
			},
			{
				Name:      "custom",
				Usage:     "Ring on a custom interval of MINUTES",
				ArgsUsage: "MINUTES",
				Action: func(c *cli.Context) error {
					minutes, err := minutesArg(c)
					if err != nil {
						return err
					}
					return e.save(c, settings.Patch{
						Mode:          settings.Ptr(schedule.ModeCustom),
						CustomMinutes: &minutes,
					})
				},
			},
			{
				Name:      "at",
				Usage:     "Ring at a time of day",
				ArgsUsage: "HH:MM",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "daily",
						Usage: "Repeat every day instead of once",
					},
				},
				Action: func(c *cli.Context) error {
					if c.NArg() != 1 {
						return cli.Exit("Expected a time of day as HH:MM", 1)
					}
					tod, err := schedule.ParseTimeOfDay(c.Args().First())
					if err != nil {
						return cli.Exit(err.Error(), 1)
					}
					return e.save(c, settings.Patch{
						Mode:        settings.Ptr(schedule.ModeSpecific),
						TimeOfDay:   settings.Ptr(tod.String()),
						RepeatDaily: settings.Ptr(c.Bool("daily")),
					})
				},
			},
			{
				Name:      "volume",
				Usage:     "Set the volume from 0 to 100",
				ArgsUsage: "PERCENT",
				Action: func(c *cli.Context) error {
					percent, err := strconv.Atoi(c.Args().First())
					if err != nil {
						return cli.Exit("Volume must be a number from 0 to 100", 1)
					}
					return e.save(c, settings.Patch{Volume: &percent})
				},
			},
			{
				Name:  "next",
				Usage: "List the upcoming chime times",
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  "count",
						Usage: "How many times to list",
						Value: 5,
					},
				},
				Action: func(c *cli.Context) error {
					st, err := settings.Load(c.Context, e.backends.KV)
					if err != nil {
						return cli.Exit("Failed to read settings: "+err.Error(), 1)
					}
					cfg, _ := st.Schedule()
					times, err := schedule.Upcoming(cfg, e.clock(), c.Int("count"))
					if err != nil {
						return cli.Exit(err.Error(), 1)
					}
					fmt.Fprintln(c.App.Writer, presenters.DescribeSchedule(cfg))
					for _, t := range times {
						fmt.Fprintln(c.App.Writer, t.Format("Mon 2006-01-02 15:04"))
					}
					return nil
				},
			},
			{
				Name:  "sounds",
				Usage: "Manage chime sounds",
				Subcommands: []*cli.Command{
					{
						Name:  "list",
						Usage: "List built-in and uploaded sounds",
						Action: func(c *cli.Context) error {
							list, err := e.catalog.List(c.Context)
							if err != nil {
								return cli.Exit("Failed to list sounds: "+err.Error(), 1)
							}
							st, err := settings.Load(c.Context, e.backends.KV)
							if err != nil {
								return cli.Exit("Failed to read settings: "+err.Error(), 1)
							}
							for _, s := range list {
								marker := " "
								if s.ID == st.SelectedSound {
									marker = "*"
								}
								fmt.Fprintf(c.App.Writer, "%s %-24s %s\n", marker, s.ID, s.Name)
							}
							return nil
						},
					},
					{
						Name:      "add",
						Usage:     "Upload a sound file and select it",
						ArgsUsage: "FILE",
						Flags: []cli.Flag{
							&cli.StringFlag{
								Name:  "type",
								Usage: "Content type, detected from the file when empty",
							},
						},
						Action: func(c *cli.Context) error {
							path := c.Args().First()
							if path == "" {
								return cli.Exit("Expected a file to upload", 1)
							}
							f, err := os.Open(path)
							if err != nil {
								return cli.Exit(err.Error(), 1)
							}
							defer f.Close()

							info, err := f.Stat()
							if err != nil {
								return cli.Exit(err.Error(), 1)
							}
							br := bufio.NewReader(f)
							head, _ := br.Peek(512)
							contentType := c.String("type")
							if contentType == "" {
								contentType = detectContentType(path, head)
							}

							sound, err := e.catalog.Add(c.Context, sounds.Upload{
								Filename:    filepath.Base(path),
								ContentType: contentType,
								Size:        info.Size(),
								Data:        br,
							})
							if err != nil {
								return cli.Exit("Failed to add sound: "+err.Error(), 1)
							}
							fmt.Fprintf(c.App.Writer, "Added %s (%s)\n", sound.ID, sound.Name)
							return e.save(c, settings.Patch{SelectedSound: &sound.ID})
						},
					},
					{
						Name:      "delete",
						Usage:     "Delete an uploaded sound",
						ArgsUsage: "ID",
						Action: func(c *cli.Context) error {
							reset, err := e.catalog.Delete(c.Context, c.Args().First())
							if err != nil {
								return cli.Exit("Failed to delete sound: "+err.Error(), 1)
							}
							if reset {
								fmt.Fprintf(c.App.Writer, "Selection reset to %s\n", settings.DefaultSound)
							}
							return nil
						},
					},
					{
						Name:      "select",
						Usage:     "Select the sound the chime plays",
						ArgsUsage: "ID",
						Action: func(c *cli.Context) error {
							sound, err := e.catalog.Find(c.Context, c.Args().First())
							if err != nil {
								return cli.Exit(err.Error(), 1)
							}
							return e.save(c, settings.Patch{SelectedSound: &sound.ID})
						},
					},
				},
			},
			{
				Name:  "play",
				Usage: "Play the selected sound once through the log or ffplay dispatcher",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "sound",
						Usage: "Sound to play instead of the selected one",
					},
				},
				Action: func(c *cli.Context) error {
					st, err := settings.Load(c.Context, e.backends.KV)
					if err != nil {
						return cli.Exit("Failed to read settings: "+err.Error(), 1)
					}
					soundID := st.SelectedSound
					if c.String("sound") != "" {
						soundID = c.String("sound")
					}

					var dispatcher player.Dispatcher = player.NewLogDispatcher(e.catalog)
					if e.cfg.Dispatcher == config.DispatcherFFPlay {
						dispatcher = player.NewFFPlayDispatcher(e.catalog, "")
					}
					if err := dispatcher.Play(c.Context, soundID, st.Volume); err != nil {
						return cli.Exit("Failed to play: "+err.Error(), 1)
					}
					return nil
				},
			},
			{
				Name:  "watch",
				Usage: "Print fires as the daemon publishes them",
				Action: func(c *cli.Context) error {
					stream := e.backends.FireStream(e.cfg)
					if stream == nil {
						return cli.Exit("Set CHIME_FIRE_STREAM to watch fires", 1)
					}
					lastID := "$"
					for c.Context.Err() == nil {
						fires, next, err := stream.Read(c.Context, lastID, 5*time.Second)
						if err != nil {
							if c.Context.Err() != nil {
								return nil
							}
							return cli.Exit(err.Error(), 1)
						}
						lastID = next
						for _, fire := range fires {
							fmt.Fprintf(c.App.Writer, "%s %s vol=%d played=%t\n",
								fire.At.In(e.location).Format("15:04:05"), fire.SoundID, fire.Volume, fire.Played)
						}
					}
					return nil
				},
			},
		},
	}
}

func main() {
	if err := newApp(os.Stdout, time.Now).Run(os.Args); err != nil {
		log.Fatalf("Error running CLI: %v", err)
	}
}

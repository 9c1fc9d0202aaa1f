package main

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"coqui"
	"coqui/internal/cli/player"
	"coqui/internal/cli/scheme/colours"
	"coqui/internal/config"
	"coqui/internal/credentials"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var baseURL string

func main() {
	config.SetDefaults()
	config.Load()

	rootCmd := &cobra.Command{
		Use:   "coqui",
		Short: "🐸 Talk to the Coqui text-to-speech service",
		Long: `Clone voices and synthesize speech with the Coqui hosted TTS API.

Log in once with an API token, then list voices, clone new ones from
reference audio, and turn text into downloadable speech samples.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&baseURL, "base-url", "", "Override the API base URL")

	ttsCmd := &cobra.Command{
		Use:   "tts",
		Short: "🗣️ Voice cloning and synthesis commands",
	}
	ttsCmd.AddCommand(
		listVoicesCmd(),
		cloneVoiceCmd(),
		listSamplesCmd(),
		synthesizeCmd(),
		estimateQualityCmd(),
	)

	rootCmd.AddCommand(loginCmd(), ttsCmd)

	if err := rootCmd.Execute(); err != nil {
		colours.Error.Fprintf(os.Stderr, "❌ Error: %v\n", err)
		os.Exit(1)
	}
}

func newClient() *coqui.Client {
	url := baseURL
	if url == "" {
		url = viper.GetString("api.base_url")
	}
	return coqui.New(coqui.WithBaseURL(url))
}

// authedClient builds a client carrying the persisted token.
func authedClient() (*coqui.Client, error) {
	store, err := credentials.Default()
	if err != nil {
		return nil, err
	}
	token, err := store.Load()
	if err != nil {
		if errors.Is(err, credentials.ErrNoCredentials) {
			return nil, fmt.Errorf("not logged in, run `coqui login` first")
		}
		return nil, err
	}
	c := newClient()
	c.SetToken(token)
	return c, nil
}

func loginCmd() *cobra.Command {
	var token string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "🔑 Log in with an API token",
		RunE: func(cmd *cobra.Command, args []string) error {
			if token == "" {
				colours.Prompt.Print("API token: ")
				reader := bufio.NewReader(os.Stdin)
				line, err := reader.ReadString('\n')
				if err != nil {
					return fmt.Errorf("failed to read token: %w", err)
				}
				token = strings.TrimSpace(line)
			}
			if token == "" {
				return fmt.Errorf("no token provided")
			}

			client := newClient()
			ok, err := client.Login(cmd.Context(), token)
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("invalid token")
			}

			store, err := credentials.Default()
			if err != nil {
				return err
			}
			if err := store.Save(token); err != nil {
				return err
			}
			logrus.WithField("path", store.Path()).Debug("saved credentials")
			colours.Success.Println("Logged in!")
			return nil
		},
	}
	cmd.Flags().StringVar(&token, "token", "", "API token to sign in with")
	return cmd
}

func listVoicesCmd() *cobra.Command {
	var fields string
	var jsonOut bool
	cmd := &cobra.Command{
		Use:   "list-voices",
		Short: "📋 List cloned voices for the account",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := authedClient()
			if err != nil {
				return err
			}
			voices, err := client.ClonedVoices(cmd.Context())
			if err != nil {
				return err
			}
			switch {
			case jsonOut:
				return printJSON(voices)
			case fields != "":
				rows := make([][]string, 0, len(voices))
				for _, v := range voices {
					row, err := voiceFields(v, fields)
					if err != nil {
						return err
					}
					rows = append(rows, row)
				}
				return printCSV(rows)
			default:
				if len(voices) == 0 {
					colours.Info.Println("No cloned voices yet.")
					return nil
				}
				for _, v := range voices {
					colours.Title.Print(v.Name)
					fmt.Printf("  %s  samples=%d  created=%s\n",
						v.ID, v.SamplesCount, v.CreatedAt.Format("2006-01-02 15:04"))
				}
				return nil
			}
		},
	}
	cmd.Flags().StringVarP(&fields, "fields", "f", "", "CSV output with the given voice fields, e.g. -f id,name")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Print output as JSON")
	return cmd
}

func cloneVoiceCmd() *cobra.Command {
	var audioFile, name string
	var jsonOut bool
	cmd := &cobra.Command{
		Use:   "clone-voice",
		Short: "🧬 Clone a voice from a reference audio file",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := authedClient()
			if err != nil {
				return err
			}
			f, err := os.Open(audioFile)
			if err != nil {
				return fmt.Errorf("failed to open audio file: %w", err)
			}
			defer f.Close()

			voice, err := client.CloneVoice(cmd.Context(), f, name)
			if err != nil {
				return err
			}
			if jsonOut {
				return printJSON(voice)
			}
			colours.Success.Printf("Cloned voice %q\n", voice.Name)
			fmt.Printf("  id=%s  created=%s\n", voice.ID, voice.CreatedAt.Format("2006-01-02 15:04"))
			return nil
		},
	}
	cmd.Flags().StringVar(&audioFile, "audio-file", "", "Path of reference audio file to clone from")
	cmd.Flags().StringVar(&name, "name", "", "Name of the cloned voice")
	cmd.MarkFlagRequired("audio-file")
	cmd.MarkFlagRequired("name")
	return cmd
}

func listSamplesCmd() *cobra.Command {
	var voice, fields string
	var jsonOut bool
	cmd := &cobra.Command{
		Use:   "list-samples",
		Short: "🎧 List samples synthesized with a voice",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := authedClient()
			if err != nil {
				return err
			}
			samples, err := client.ListSamples(cmd.Context(), voice)
			if err != nil {
				return err
			}
			switch {
			case jsonOut:
				return printJSON(samples)
			case fields != "":
				rows := make([][]string, 0, len(samples))
				for _, s := range samples {
					row, err := sampleFields(s, fields)
					if err != nil {
						return err
					}
					rows = append(rows, row)
				}
				return printCSV(rows)
			default:
				if len(samples) == 0 {
					colours.Info.Println("No samples for this voice yet.")
					return nil
				}
				for _, s := range samples {
					colours.Title.Print(s.Name)
					fmt.Printf("  %s  %q  created=%s\n",
						s.ID, s.Text, s.CreatedAt.Format("2006-01-02 15:04"))
				}
				return nil
			}
		},
	}
	cmd.Flags().StringVar(&voice, "voice", "", "ID of the voice to list samples for")
	cmd.Flags().StringVarP(&fields, "fields", "f", "", "CSV output with the given sample fields, e.g. -f id,name")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Print output as JSON")
	cmd.MarkFlagRequired("voice")
	return cmd
}

func synthesizeCmd() *cobra.Command {
	var voice, text, name, save string
	var speed float64
	var play, jsonOut bool
	cmd := &cobra.Command{
		Use:   "synthesize",
		Short: "🔊 Synthesize speech with a cloned voice",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := authedClient()
			if err != nil {
				return err
			}
			if name == "" {
				name = text
				if len(name) > 30 {
					name = name[:30]
				}
			}
			sample, err := client.Synthesize(cmd.Context(), voice, text, speed, name)
			if err != nil {
				return err
			}

			if save != "" {
				out, err := os.Create(save)
				if err != nil {
					return fmt.Errorf("failed to create output file: %w", err)
				}
				defer out.Close()
				if err := sample.DownloadAudio(cmd.Context(), client, out); err != nil {
					return err
				}
				colours.Success.Printf("Saved synthesized sample to %s\n", save)
				return nil
			}
			if play {
				var buf bytes.Buffer
				if err := sample.DownloadAudio(cmd.Context(), client, &buf); err != nil {
					return err
				}
				return player.Play(&buf)
			}
			if jsonOut {
				return printJSON(sample)
			}
			colours.Success.Printf("Synthesized sample %q\n", sample.Name)
			fmt.Printf("  id=%s\n  audio=%s\n", sample.ID, sample.AudioURL)
			return nil
		},
	}
	cmd.Flags().StringVar(&voice, "voice", "", "ID of the voice to synthesize with")
	cmd.Flags().StringVar(&text, "text", "", "Text to synthesize")
	cmd.Flags().Float64Var(&speed, "speed", viper.GetFloat64("synthesize.speed"), "Synthesis speed, above 0.0 up to 2.0")
	cmd.Flags().StringVar(&name, "name", "", "Name of the sample, defaults to the start of the text")
	cmd.Flags().StringVar(&save, "save", "", "Save the synthesized audio to this file")
	cmd.Flags().BoolVar(&play, "play", false, "Play the synthesized audio")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Print output as JSON")
	cmd.MarkFlagRequired("voice")
	cmd.MarkFlagRequired("text")
	return cmd
}

func estimateQualityCmd() *cobra.Command {
	var audioFile, audioURL string
	cmd := &cobra.Command{
		Use:   "estimate-quality",
		Short: "📐 Estimate how well audio works as a cloning reference",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := authedClient()
			if err != nil {
				return err
			}
			req := coqui.EstimateQualityRequest{AudioURL: audioURL}
			if audioFile != "" {
				f, err := os.Open(audioFile)
				if err != nil {
					return fmt.Errorf("failed to open audio file: %w", err)
				}
				defer f.Close()
				req.Audio = f
				req.Filename = audioFile
			}
			estimate, err := client.EstimateQuality(cmd.Context(), req)
			if err != nil {
				return err
			}
			colours.Info.Printf("Quality: %s (%.2f)\n", estimate.Level, estimate.Raw)
			return nil
		},
	}
	cmd.Flags().StringVar(&audioFile, "audio-file", "", "Path of a local audio file to estimate")
	cmd.Flags().StringVar(&audioURL, "url", "", "Publicly reachable URL of an audio file to estimate")
	cmd.MarkFlagsOneRequired("audio-file", "url")
	cmd.MarkFlagsMutuallyExclusive("audio-file", "url")
	return cmd
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printCSV(rows [][]string) error {
	w := csv.NewWriter(os.Stdout)
	defer w.Flush()
	return w.WriteAll(rows)
}

func voiceFields(v coqui.ClonedVoice, fields string) ([]string, error) {
	var row []string
	for _, f := range strings.Split(fields, ",") {
		switch strings.TrimSpace(f) {
		case "id":
			row = append(row, v.ID)
		case "name":
			row = append(row, v.Name)
		case "samples_count":
			row = append(row, fmt.Sprintf("%d", v.SamplesCount))
		case "created_at":
			row = append(row, v.CreatedAt.Format("2006-01-02T15:04:05Z07:00"))
		default:
			return nil, fmt.Errorf("unknown voice field %q (available: id, name, samples_count, created_at)", f)
		}
	}
	return row, nil
}

func sampleFields(s coqui.Sample, fields string) ([]string, error) {
	var row []string
	for _, f := range strings.Split(fields, ",") {
		switch strings.TrimSpace(f) {
		case "id":
			row = append(row, s.ID)
		case "name":
			row = append(row, s.Name)
		case "text":
			row = append(row, s.Text)
		case "created_at":
			row = append(row, s.CreatedAt.Format("2006-01-02T15:04:05Z07:00"))
		case "audio_url":
			row = append(row, s.AudioURL)
		default:
			return nil, fmt.Errorf("unknown sample field %q (available: id, name, text, created_at, audio_url)", f)
		}
	}
	return row, nil
}

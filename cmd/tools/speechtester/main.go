package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/zhouzirui/fluent-tutor/backend/internal/config"
	speechmodel "github.com/zhouzirui/fluent-tutor/backend/internal/model/speech"
	"github.com/zhouzirui/fluent-tutor/backend/internal/service/speech"
)

// options 是所有子命令共享的参数
type options struct {
	session  string
	language string
	voice    string
	format   string
	timeout  time.Duration
}

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05.000"})

	if err := newRootCommand().Execute(); err != nil {
		log.Fatal().Err(err).Msg("speech test failed")
	}
}

func newRootCommand() *cobra.Command {
	opts := &options{}
	root := &cobra.Command{
		Use:           "speechtester",
		Short:         "Manual checks against the Volcengine speech endpoints",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	flags := root.PersistentFlags()
	flags.StringVar(&opts.session, "session", "", "session id, generated when empty")
	flags.StringVar(&opts.language, "lang", "", "language code, defaults to the configured one")
	flags.StringVar(&opts.voice, "voice", "", "TTS voice id, defaults to SPEECH_TTS_VOICE")
	flags.StringVar(&opts.format, "format", "", "audio format (asr: input, tts: output)")
	flags.DurationVar(&opts.timeout, "timeout", 45*time.Second, "request timeout")

	root.AddCommand(newASRCommand(opts), newTTSCommand(opts), newPronounceCommand(opts))
	return root
}

// setup 加载配置并返回带超时的上下文
func setup(opts *options) (*config.SpeechConfig, context.Context, context.CancelFunc, error) {
	if err := godotenv.Load(); err != nil {
		log.Warn().Err(err).Msg("无法加载 .env，改用系统环境变量")
	}
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, nil, fmt.Errorf("配置加载失败: %w", err)
	}
	if !cfg.Speech.Enabled {
		return nil, nil, nil, errors.New("语音服务未启用，请先配置 SPEECH_APP_ID 与 SPEECH_ACCESS_TOKEN")
	}
	if opts.session == "" {
		opts.session = fmt.Sprintf("manual-%d", time.Now().UnixNano())
	}
	ctx, cancel := context.WithTimeout(context.Background(), opts.timeout)
	return &cfg.Speech, ctx, cancel, nil
}

func newASRCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "asr <audio-file>",
		Short: "Transcribe an audio file",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			cfg, ctx, cancel, err := setup(opts)
			if err != nil {
				return err
			}
			defer cancel()

			audio, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("读取音频文件失败: %w", err)
			}
			format := opts.format
			if format == "" {
				format = speechmodel.FormatFromFilename(args[0])
			}
			language := opts.language
			if language == "" {
				language = cfg.ASRLanguage
			}

			log.Info().Str("session", opts.session).Str("format", format).Str("language", language).
				Int("bytes", len(audio)).Msg("开始 ASR 测试")

			started := time.Now()
			resp, err := speech.NewVolcengineASRClient(cfg.ClientConfig()).Transcribe(ctx, &speechmodel.ASRRequest{
				SessionID: opts.session,
				Audio:     audio,
				Format:    format,
				Language:  language,
			})
			if err != nil {
				return fmt.Errorf("ASR 调用失败: %w", err)
			}
			log.Info().Str("text", resp.Text).Int64("audio_ms", resp.Duration).
				Dur("elapsed", time.Since(started)).Msg("ASR 识别成功")
			return nil
		},
	}
}

func newTTSCommand(opts *options) *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "tts <text>",
		Short: "Synthesize text to an audio file",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			cfg, ctx, cancel, err := setup(opts)
			if err != nil {
				return err
			}
			defer cancel()

			text := strings.TrimSpace(strings.Join(args, " "))
			format := opts.format
			if format == "" {
				format = "mp3"
			}

			resp, err := speech.NewVolcengineTTSClient(cfg.ClientConfig()).Synthesize(ctx, &speechmodel.TTSRequest{
				SessionID: opts.session,
				Text:      text,
				Voice:     opts.voice,
				Format:    format,
				Language:  opts.language,
			})
			if err != nil {
				return fmt.Errorf("TTS 调用失败: %w", err)
			}

			if out == "" {
				out = fmt.Sprintf("tts-output-%d.%s", time.Now().Unix(), resp.Format)
			}
			if err := os.WriteFile(out, resp.AudioData, 0o644); err != nil {
				return fmt.Errorf("写入音频文件失败: %w", err)
			}
			log.Info().Str("file", out).Int("bytes", len(resp.AudioData)).Msg("TTS 合成成功")
			return nil
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "", "output file, named by timestamp when empty")
	return cmd
}

func newPronounceCommand(opts *options) *cobra.Command {
	var example string
	cmd := &cobra.Command{
		Use:   "pronounce <term>",
		Short: "Synthesize a vocabulary word and its example sentence",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			cfg, ctx, cancel, err := setup(opts)
			if err != nil {
				return err
			}
			defer cancel()

			svc := speech.NewService(cfg.ClientConfig())
			out, err := svc.Pronounce(ctx, speechmodel.PronounceRequest{
				Term:    args[0],
				Example: example,
				Voice:   opts.voice,
			})
			if err != nil {
				return fmt.Errorf("发音合成失败: %w", err)
			}

			for name, clip := range map[string]*speechmodel.Clip{"word": out.Word, "example": out.Example} {
				if clip == nil {
					continue
				}
				log.Info().Str("part", name).Str("text", clip.Text).Str("format", clip.Format).
					Int("base64_len", len(clip.Audio)).Msg("clip ready")
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&example, "example", "", "example sentence to read after the word")
	return cmd
}

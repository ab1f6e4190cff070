package main

import (
	"context"
	"encoding/json"
	"os"
	"os/signal"
	"syscall"

	"openkeytool/internal/config"
	"openkeytool/internal/logger"
	"openkeytool/pkg/api"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

type app struct {
	configPath string
	devtools   string
	db         string
	output     string

	cfg *config.Config
	log logger.Logger
	svc api.Service
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		pterm.Error.Println(err.Error())
		stop()
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:           "openkeytool",
		Short:         "捕获 openKey 请求，为页面 iframe 链接写入最新 openKey",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd)
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if a.svc != nil {
				return a.svc.Close()
			}
			return nil
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&a.configPath, "config", "openkeytool.yaml", "配置文件路径")
	pf.StringVar(&a.devtools, "devtools", "", "浏览器 DevTools 地址，如 http://127.0.0.1:9222")
	pf.StringVar(&a.db, "db", "", "sqlite 数据库路径")
	pf.StringVarP(&a.output, "output", "o", "", "输出格式 (json)")

	root.AddCommand(
		newCaptureCmd(a),
		newDetectCmd(a),
		newOpenKeyCmd(a),
		newRewriteCmd(a),
		newSettingsCmd(a),
		newHistoryCmd(a),
		newTabsCmd(a),
		newSessionStorageCmd(a),
	)
	return root
}

func (a *app) setup(cmd *cobra.Command) error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("devtools") {
		cfg.DevTools.URL = a.devtools
	}
	if cmd.Flags().Changed("db") {
		cfg.Sqlite.Dsn = a.db
	}
	a.cfg = cfg
	a.log = logger.New(logger.Options{Level: cfg.Log.Level, Writers: cfg.Log.Writer, File: cfg.Log.File})

	svc, err := api.NewService(cfg, a.log)
	if err != nil {
		return err
	}
	a.svc = svc
	return nil
}

func (a *app) jsonOutput() bool { return a.output == "json" }

// render json 模式输出缩进 JSON，否则调用 human
func (a *app) render(v any, human func()) error {
	if a.jsonOutput() {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	human()
	return nil
}

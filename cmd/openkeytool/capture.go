package main

import (
	"encoding/json"
	"os"
	"time"

	"openkeytool/pkg/model"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

func newCaptureCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "capture",
		Short: "监听目标站点的 openKey 请求并缓存请求头，Ctrl+C 结束",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			events := make(chan model.CaptureEvent, 16)
			notes := make(chan model.TabPrev, 4)

			if !a.jsonOutput() {
				pterm.Info.Printfln("正在捕获 %s", a.cfg.Capture.Pattern)
			}

			done := make(chan error, 1)
			go func() { done <- a.svc.Capture(ctx, events, notes) }()

			enc := json.NewEncoder(os.Stdout)
			for {
				select {
				case err := <-done:
					if err == nil && !a.jsonOutput() {
						pterm.Info.Println("已停止捕获")
					}
					return err
				case evt := <-events:
					if a.jsonOutput() {
						_ = enc.Encode(evt)
						continue
					}
					if evt.Error != "" {
						pterm.Warning.Printfln("缓存请求失败: %s (%s)", evt.URL, evt.Error)
						continue
					}
					pterm.Success.Printfln("%s 已缓存 %s %s (%d 个请求头)",
						time.UnixMilli(evt.Timestamp).Format(time.TimeOnly), evt.Method, evt.URL, evt.Headers)
				case note := <-notes:
					if a.jsonOutput() {
						_ = enc.Encode(map[string]any{"type": "tab-prev", "title": note.Title})
						continue
					}
					pterm.Info.Printfln("切换标签页，上一个: %s", note.Title)
				}
			}
		},
	}
}

package main

import (
	"errors"
	"strings"

	"openkeytool/internal/bus"
	"openkeytool/internal/openkey"
	"openkeytool/pkg/model"

	"github.com/pterm/pterm"
	"github.com/samber/lo"
	"github.com/spf13/cobra"
)

func newOpenKeyCmd(a *app) *cobra.Command {
	var raw, copyToken bool
	cmd := &cobra.Command{
		Use:   "openkey",
		Short: "使用缓存的请求头获取最新 openKey",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if raw {
				res := a.svc.FetchOpenKey(ctx)
				if copyToken {
					if err := a.svc.CopyText(ctx, openkey.FormatResult(res)); err != nil {
						return err
					}
				}
				if err := a.render(res, func() { pterm.Println(openkey.FormatResult(res)) }); err != nil {
					return err
				}
				if !res.Success {
					return errors.New(lo.Ternary(res.Error != "", res.Error, res.StatusText))
				}
				return nil
			}

			parsed := a.svc.ParseOpenKey(ctx)
			if !parsed.Success {
				_ = a.render(parsed, func() {})
				return errors.New(parsed.Error)
			}
			if copyToken {
				if err := a.svc.CopyText(ctx, parsed.Token()); err != nil {
					return err
				}
			}
			return a.render(parsed, func() {
				pterm.Success.Println("openKey: " + parsed.Token())
			})
		},
	}
	cmd.Flags().BoolVar(&raw, "raw", false, "输出完整的请求结果")
	cmd.Flags().BoolVar(&copyToken, "copy", false, "复制到剪切板")
	return cmd
}

func newRewriteCmd(a *app) *cobra.Command {
	var withHost bool
	cmd := &cobra.Command{
		Use:   "rewrite URL TOKEN",
		Short: "在 URL 的查询串或 hash 中写入 openKey",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			target := args[0]
			if withHost {
				target = a.svc.BuildURL(target)
			}
			out := a.svc.Rewrite(target, args[1])
			return a.render(map[string]string{"url": out}, func() { pterm.Println(out) })
		},
	}
	cmd.Flags().BoolVar(&withHost, "host", false, "先用 host 前缀拼接 URL")
	return cmd
}

func newSettingsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "settings",
		Short: "查看或修改设置",
	}
	show := &cobra.Command{
		Use:   "show",
		Short: "显示当前设置",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s := a.svc.Settings()
			return a.render(s, func() {
				_ = pterm.DefaultTable.WithHasHeader().WithData(pterm.TableData{
					{"Property", "Value"},
					{"hostPrefix", s.HostPrefix},
				}).Render()
			})
		},
	}
	setHost := &cobra.Command{
		Use:   "set-host HOST",
		Short: "设置 host 前缀，缺少协议时自动补 http://",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.svc.UpdateHostPrefix(cmd.Context(), args[0]); err != nil {
				return err
			}
			s := a.svc.Settings()
			return a.render(s, func() { pterm.Success.Println("设置已保存: " + s.HostPrefix) })
		},
	}
	reset := &cobra.Command{
		Use:   "reset",
		Short: "恢复默认设置",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.svc.ResetSettings(cmd.Context()); err != nil {
				return err
			}
			s := a.svc.Settings()
			return a.render(s, func() { pterm.Success.Println("已恢复默认设置: " + s.HostPrefix) })
		},
	}
	cmd.AddCommand(show, setHost, reset)
	return cmd
}

func newHistoryCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "菜单点击记录",
	}
	list := &cobra.Command{
		Use:   "list",
		Short: "列出记录，最近的在前",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			items := a.svc.History(cmd.Context())
			return a.render(items, func() {
				if len(items) == 0 {
					pterm.Info.Println("暂无记录")
					return
				}
				for i, item := range items {
					pterm.Printfln("%2d  %s", i+1, item)
				}
			})
		},
	}
	add := &cobra.Command{
		Use:   "add TEXT",
		Short: "手动添加一条记录",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.svc.PushHistory(cmd.Context(), strings.Join(args, " "))
		},
	}
	clearCmd := &cobra.Command{
		Use:   "clear",
		Short: "清空记录",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.svc.ClearHistory(cmd.Context()); err != nil {
				return err
			}
			if !a.jsonOutput() {
				pterm.Success.Println("已清空")
			}
			return nil
		},
	}
	cmd.AddCommand(list, add, clearCmd)
	return cmd
}

func newTabsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "tabs",
		Short: "列出浏览器标签页",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			targets, err := a.svc.ListTargets(ctx)
			if err != nil {
				return err
			}
			current, err := a.svc.CurrentTab(ctx)
			if err != nil {
				return err
			}
			out := struct {
				Current model.CurrentTabResponse `json:"current"`
				Tabs    []model.TargetInfo       `json:"tabs"`
			}{current, targets}
			return a.render(out, func() {
				rows := pterm.TableData{{"ID", "Title", "URL", ""}}
				rows = append(rows, lo.Map(targets, func(t model.TargetInfo, _ int) []string {
					return []string{string(t.ID), t.Title, t.URL, lo.Ternary(t.IsCurrent, "*", "")}
				})...)
				_ = pterm.DefaultTable.WithHasHeader().WithData(rows).Render()
			})
		},
	}
}

func newSessionStorageCmd(a *app) *cobra.Command {
	var key string
	cmd := &cobra.Command{
		Use:   "session-storage",
		Short: "读取页面 iframe 中的 sessionStorage",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := a.svc.SessionStorage(cmd.Context(), key)
			if err != nil {
				return err
			}
			if err := a.render(resp, func() {
				if resp.Success {
					pterm.Success.Printfln("%s: %v", resp.Key, resp.Data)
				}
			}); err != nil {
				return err
			}
			if !resp.Success {
				return errors.New(resp.Error)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&key, "key", bus.LoginDataKey, "sessionStorage 键名")
	return cmd
}

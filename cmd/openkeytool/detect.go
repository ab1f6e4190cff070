package main

import (
	"fmt"
	"os"
	"strconv"

	"openkeytool/pkg/model"

	"github.com/pterm/pterm"
	"github.com/samber/lo"
	"github.com/spf13/cobra"
)

func newDetectCmd(a *app) *cobra.Command {
	var (
		selectIdx   int
		htmlFile    string
		base        string
		interactive bool
	)
	cmd := &cobra.Command{
		Use:   "detect",
		Short: "检测当前页面的 iframe，写入新的 openKey 并复制链接",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			var (
				state model.DetectorState
				err   error
			)
			if htmlFile != "" {
				f, ferr := os.Open(htmlFile)
				if ferr != nil {
					return fmt.Errorf("打开HTML文件失败: %w", ferr)
				}
				defer f.Close()
				state, err = a.svc.DetectHTML(ctx, f, base)
			} else {
				state, err = a.svc.Detect(ctx)
			}
			if err != nil {
				return err
			}

			if len(state.IframeList) > 1 && state.SelectedIframe == nil {
				switch {
				case selectIdx >= 0:
					if state, err = a.svc.Select(ctx, selectIdx); err != nil {
						return err
					}
				case interactive && !a.jsonOutput():
					printIframes(state.IframeList)
					idx, perr := pickIframe(state.IframeList)
					if perr != nil {
						return perr
					}
					if state, err = a.svc.Select(ctx, idx); err != nil {
						return err
					}
				}
			}

			return a.render(state, func() { printState(state) })
		},
	}
	cmd.Flags().IntVar(&selectIdx, "select", -1, "存在多个 iframe 时选择的序号")
	cmd.Flags().StringVar(&htmlFile, "html", "", "从保存的 HTML 文件检测")
	cmd.Flags().StringVar(&base, "base", "", "HTML 文件对应的页面地址，用于解析相对链接")
	cmd.Flags().BoolVarP(&interactive, "interactive", "i", false, "存在多个 iframe 时交互选择")
	return cmd
}

func pickIframe(list []model.IframeInfo) (int, error) {
	options := lo.Map(list, func(info model.IframeInfo, _ int) string {
		return fmt.Sprintf("%d  %s", info.Index, lo.Ternary(info.HashContent != "", info.HashContent, info.Src))
	})
	chosen, err := pterm.DefaultInteractiveSelect.WithOptions(options).Show("选择 iframe")
	if err != nil {
		return 0, err
	}
	_, i, ok := lo.FindIndexOf(options, func(o string) bool { return o == chosen })
	if !ok {
		return 0, fmt.Errorf("未选择 iframe")
	}
	return list[i].Index, nil
}

func printIframes(list []model.IframeInfo) {
	rows := pterm.TableData{{"#", "Hash", "OpenKey", "URL"}}
	for _, info := range list {
		status := "失败"
		if info.OpenKeyResult != nil && info.OpenKeyResult.Success {
			status = "成功"
		}
		rows = append(rows, []string{
			strconv.Itoa(info.Index),
			info.HashContent,
			status,
			lo.Ternary(info.UpdatedURL != "", info.UpdatedURL, info.Src),
		})
	}
	_ = pterm.DefaultTable.WithHasHeader().WithData(rows).Render()
}

func printState(state model.DetectorState) {
	if len(state.IframeList) > 1 && state.SelectedIframe == nil {
		printIframes(state.IframeList)
	}
	switch {
	case state.CopiedContent != "":
		pterm.Success.Println(state.Message)
		pterm.Println(state.CopiedContent)
	case state.Message != "":
		pterm.Info.Println(state.Message)
	}
}

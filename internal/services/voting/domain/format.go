package domain

import (
	"fmt"
	"strings"
)

// Triggers name the signal that finalized a strategy
const (
	TriggerDeadline    = "deadline"
	TriggerFirstAnswer = "first_answer"
	TriggerPollClosed  = "poll_closed"
	TriggerCallback    = "callback"
)

// Verdict is 通过 or 不通过
func (d Decision) Verdict() string {
	if d.Outcome == Approved {
		return "通过"
	}
	return "不通过"
}

// Summary is the text posted to the issue and to the voting chats. stored says whether
// the selected URLs were written for the BIN.
func (d Decision) Summary(stored bool) string {
	switch d.Strategy {
	case StrategyGroup:
		bin := "无"
		if d.Outcome == Approved && stored && d.BIN != "" {
			bin = d.BIN
		}
		return strings.Join([]string{
			"投票结束啦，被入库的BIN：" + bin,
			"投票结果：" + d.Verdict(),
			fmt.Sprintf("总人数=%d", d.Totals.Total()),
			fmt.Sprintf("不通过=%d", d.Totals.Reject),
			fmt.Sprintf("通过=%d", d.Totals.Approve),
		}, "\n")
	case StrategyPoll:
		head := "Telegram 投票已结束"
		if d.Trigger == TriggerFirstAnswer {
			head = "Telegram 首票已产生"
		}
		return fmt.Sprintf("%s，选中链接数=%d\n投票结果：%s", head, len(d.SelectedURLs), d.Verdict())
	default:
		return fmt.Sprintf("Telegram 单图审核已完成，选中链接数=%d\n投票结果：%s", len(d.SelectedURLs), d.Verdict())
	}
}

package main

import (
	"strconv"

	"repair-stack/internal/models"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

func renderRecords(records []*models.VideoRecord) string {
	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)
	tw.AppendHeader(table.Row{"#", "Video", "Title", "Channel", "Events", "Frames"})

	for i, rec := range records {
		frames := 0
		for _, ev := range rec.Timeline {
			if ev.Kind == models.EventImage {
				frames++
			}
		}
		tw.AppendRow(table.Row{
			strconv.Itoa(i + 1),
			rec.Video.ID,
			text.Trim(rec.Video.Title, 60),
			rec.Video.Channel,
			strconv.Itoa(len(rec.Timeline)),
			strconv.Itoa(frames),
		})
	}

	tw.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, Align: text.AlignRight},
		{Number: 5, Align: text.AlignRight},
		{Number: 6, Align: text.AlignRight},
	})
	return tw.Render()
}

package main

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/gookit/color"
	"github.com/manpreetbhatti/menuroom/internal/catalog"
	"github.com/manpreetbhatti/menuroom/internal/menu"
	"github.com/olekukonko/tablewriter"
)

// console serializes output from the input loop and the client's read
// goroutine.
type console struct {
	mu      sync.Mutex
	out     io.Writer
	colours bool
}

func (c *console) paint(style color.Style, s string) string {
	if !c.colours {
		return s
	}
	return style.Render(s)
}

func (c *console) println(s string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintln(c.out, s)
}

func (c *console) info(format string, args ...any) {
	c.println(c.paint(color.New(color.FgCyan), fmt.Sprintf(format, args...)))
}

func (c *console) errorf(format string, args ...any) {
	c.println(c.paint(color.New(color.FgRed), fmt.Sprintf(format, args...)))
}

// menu prints every slot, the addons and the total.
func (c *console) menu(doc *menu.Document) {
	c.mu.Lock()
	defer c.mu.Unlock()

	title := fmt.Sprintf("  ====== %s (%s) ======", doc.RoomID, doc.VendorID)
	if doc.IsLocked {
		title += " locked"
	}
	fmt.Fprintln(c.out, c.paint(color.New(color.BgBlack, color.FgGreen), title))

	table := newTable(c.out, "#", "Category", "Dish", "Delta", "Selected", "Votes", "Comments")
	for i, slot := range doc.Items {
		selected := ""
		if slot.IsSelected {
			selected = "yes"
		}
		table.Append([]string{
			fmt.Sprint(i),
			slot.Category,
			slot.DisplayName,
			signed(slot.PriceDelta),
			selected,
			fmt.Sprintf("+%d -%d", len(slot.Votes.Up), len(slot.Votes.Down)),
			fmt.Sprint(len(slot.Comments)),
		})
	}
	table.Render()

	for _, addon := range doc.Addons {
		fmt.Fprintf(c.out, "  addon  %s x%d  %.2f\n", addon.DisplayName, addon.Quantity, addon.UnitPrice*float64(addon.Quantity))
	}
	fmt.Fprintf(c.out, "  total  %.2f (base %.2f)\n", doc.TotalPrice, doc.BasePrice)
}

func (c *console) catalog(items []catalog.Item) {
	c.mu.Lock()
	defer c.mu.Unlock()
	table := newTable(c.out, "Item ID", "Category", "Name", "Price")
	for _, item := range items {
		table.Append([]string{item.ID, item.Category, item.Name, fmt.Sprintf("%.2f", item.Price)})
	}
	table.Render()
}

func (c *console) chat(entry menu.ChatEntry) {
	name := c.paint(color.New(color.FgYellow), entry.AuthorName)
	c.println(fmt.Sprintf("[%s] %s: %s", entry.Timestamp.Local().Format("15:04"), name, entry.Text))
}

func (c *console) members(names []string) {
	c.info("in the room: %s", strings.Join(names, ", "))
}

func newTable(out io.Writer, header ...string) *tablewriter.Table {
	table := tablewriter.NewWriter(out)
	table.SetHeader(header)
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(true)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetTablePadding("\t")
	return table
}

func signed(v float64) string {
	if v == 0 {
		return "-"
	}
	return fmt.Sprintf("%+.2f", v)
}

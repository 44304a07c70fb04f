package handlers

import (
	"fmt"

	"github.com/edgard/ohirun/internal/commands"
)

// Command names are the wire protocol; changing one orphans it in every chat.
const (
	CommandStart = "start"
	CommandHelp  = "help"
	CommandOhiru = "ohiru"
	CommandAdd   = "add"
	CommandLink  = "link"
	CommandList  = "list"
)

// Food type ids are seeded by migrations: 1 rice, 2 noodles, 3 bread.
const (
	minFoodTypeID = 1
	maxFoodTypeID = 3
)

// NewRegistry builds the command registry with every handler wired to deps.
func NewRegistry(deps HandlerDeps) (*commands.Registry, error) {
	var registry *commands.Registry
	list := func() []commands.Command { return registry.List() }

	foodType := commands.Option{
		Name:        "foodtype",
		Description: "食べ物の種類",
		Type:        commands.TypeInteger,
		Required:    true,
		MinValue:    commands.Bound(minFoodTypeID),
		MaxValue:    commands.Bound(maxFoodTypeID),
	}
	storeID := commands.Option{Name: "storeid", Description: "店舗ID", Type: commands.TypeInteger, Required: true, MinValue: commands.Bound(1)}

	registry, err := commands.NewRegistry(
		commands.Command{
			Name:        CommandStart,
			Description: "おひるんの紹介を表示します",
			Handler:     NewStartHandler(deps),
		},
		commands.Command{
			Name:        CommandHelp,
			Description: "コマンド一覧を表示します",
			Handler:     NewHelpHandler(deps, list),
		},
		commands.Command{
			Name:        CommandOhiru,
			Description: "お昼を決めるコマンド - ランダムに店と食べ物を選びます",
			Subcommands: []commands.Subcommand{
				{Name: "type", Description: "食べ物の種類を指定して選びます (1: コメ, 2: 麺, 3: パン)", Options: []commands.Option{foodType}},
				{Name: "store", Description: "店舗を指定して選びます", Options: []commands.Option{storeID}},
			},
			Handler: NewOhiruHandler(deps),
		},
		commands.Command{
			Name:              CommandAdd,
			Description:       "店舗または食べ物を追加します",
			RequireSubcommand: true,
			Subcommands: []commands.Subcommand{
				{
					Name:        "store",
					Description: "新しい店舗を追加します",
					Options: []commands.Option{
						{Name: "name", Description: "店舗名", Type: commands.TypeString, Required: true, MaxLength: 100},
						{Name: "genre", Description: "ジャンル", Type: commands.TypeString, Required: true, MaxLength: 100},
					},
				},
				{
					Name:        "meal",
					Description: "新しい食べ物を追加します",
					Options: []commands.Option{
						foodType,
						{Name: "name", Description: "食べ物の名前", Type: commands.TypeString, Required: true, MaxLength: 100},
						{Name: "description", Description: "説明", Type: commands.TypeString, MaxLength: 200},
					},
				},
			},
			Handler: NewAddHandler(deps),
		},
		commands.Command{
			Name:        CommandLink,
			Description: "店舗と食べ物を関連付けます",
			Options: []commands.Option{
				storeID,
				{Name: "mealid", Description: "食べ物ID", Type: commands.TypeInteger, Required: true, MinValue: commands.Bound(1)},
				{Name: "price", Description: "価格", Type: commands.TypeNumber, MinValue: commands.Bound(0)},
			},
			Handler: NewLinkHandler(deps),
		},
		commands.Command{
			Name:              CommandList,
			Description:       "登録されているデータを表示します",
			RequireSubcommand: true,
			Subcommands: []commands.Subcommand{
				{Name: "stores", Description: "登録されている店舗一覧を表示します"},
				{Name: "meals", Description: "登録されている食べ物一覧を表示します"},
				{Name: "links", Description: "店舗と食べ物の関連付け一覧を表示します"},
				{Name: "types", Description: "食べ物の種類一覧を表示します"},
			},
			Handler: NewListHandler(deps),
		},
	)
	if err != nil {
		return nil, fmt.Errorf("failed to build command registry: %w", err)
	}
	return registry, nil
}

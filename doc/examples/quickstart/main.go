// Package quickstart provides simple example code for documentation.
package quickstart

import (
	"context"
	"log"
	"net/http"

	"github.com/jnsquire/zetro"
	"github.com/jnsquire/zetro/compiler"
	"github.com/jnsquire/zetro/idl"
)

// [snippet:schema]
const schemaDoc = `{
	"structs": {
		"News": {
			"fields": {
				"id": "i32",
				"title": "string",
				"body": "?string",
				"createdAt": "u32; unix seconds",
			},
		},
		"ListNewsRequest": {
			"fields": {
				"limit": "?i32",
				"offset": "?i32",
			},
		},
		"ListNewsResponse": {
			"fields": {
				"items": "[]struct~News",
			},
		},
		"CreateNewsRequest": {
			"fields": {
				"title": "string",
				"body": "?string",
			},
		},
	},
	"routes": {
		"ListNews": {
			"kind": "query",
			"request": "struct~ListNewsRequest",
			"response": "struct~ListNewsResponse",
		},
		"CreateNews": {
			"kind": "mutation",
			"request": "struct~CreateNewsRequest",
			"response": "struct~News",
		},
	},
}`

// [/snippet:schema]

// [snippet:handlers]
func ListNews(ctx context.Context, req *ListNewsRequest) (*ListNewsResponse, error) {
	// Your implementation
	return &ListNewsResponse{}, nil
}

func CreateNews(ctx context.Context, req *CreateNewsRequest) (*News, error) {
	// Your implementation
	return &News{}, nil
}

// [/snippet:handlers]

func exampleRegistration() {
	// [snippet:registration]
	doc, err := idl.Parse([]byte(schemaDoc))
	if err != nil {
		log.Fatal(err)
	}
	art, err := compiler.Compile(doc)
	if err != nil {
		log.Fatal(err)
	}

	app := zetro.NewApp(art.Table)
	zetro.HandleQuery(app, "ListNews", ListNews)
	zetro.HandleMutation(app, "CreateNews", CreateNews)

	http.ListenAndServe(":8080", app.Handler())
	// [/snippet:registration]
}

func exampleClient() {
	art, _ := compiler.CompileFile("schema.jsonc")
	// [snippet:client]
	client := zetro.NewClient(art.Table, "http://localhost:8080")

	res, err := zetro.Call[ListNewsRequest, ListNewsResponse](context.Background(), client, "ListNews", &ListNewsRequest{})
	if err != nil {
		log.Fatal(err)
	}
	for _, item := range res.Items {
		log.Println(item.Title)
	}
	// [/snippet:client]
}

// Keep imports used.
var (
	_ = exampleRegistration
	_ = exampleClient
)

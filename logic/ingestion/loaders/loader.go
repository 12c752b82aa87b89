// Package loaders 把 PDF 拆成逐页文本
package loaders

import (
	"context"
	"fmt"
	"io"

	"contractx/logic/ingestion/processors"
	"contractx/types"

	"github.com/cloudwego/eino-ext/components/document/loader/file"
	"github.com/cloudwego/eino-ext/components/document/parser/pdf"
	"github.com/cloudwego/eino/components/document"
	"github.com/cloudwego/eino/components/document/parser"
)

// PDFLoader 上传走 Parse，收件箱目录走 Load
type PDFLoader struct {
	parser parser.Parser
	loader document.Loader
}

func NewPDFLoader(ctx context.Context) (*PDFLoader, error) {
	// 按页输出，页码即下标 + 1
	p, err := pdf.NewPDFParser(ctx, &pdf.Config{ToPages: true})
	if err != nil {
		return nil, fmt.Errorf("new pdf parser: %w", err)
	}
	l, err := file.NewFileLoader(ctx, &file.FileLoaderConfig{
		UseNameAsID: true,
		Parser:      p,
	})
	if err != nil {
		return nil, fmt.Errorf("new file loader: %w", err)
	}
	return &PDFLoader{parser: p, loader: l}, nil
}

// Parse 解析上传的文件流
func (l *PDFLoader) Parse(ctx context.Context, r io.Reader, name string) ([]types.PageInput, error) {
	docs, err := l.parser.Parse(ctx, r, parser.WithURI(name))
	if err != nil {
		return nil, fmt.Errorf("%w: parse pdf %s: %v", types.ErrValidation, name, err)
	}
	return toPages(name, processors.Processor(docs))
}

// Load 从磁盘读取 PDF
func (l *PDFLoader) Load(ctx context.Context, path string) ([]types.PageInput, error) {
	docs, err := l.loader.Load(ctx, document.Source{URI: path})
	if err != nil {
		return nil, fmt.Errorf("%w: load pdf %s: %v", types.ErrValidation, path, err)
	}
	return toPages(path, processors.Processor(docs))
}

func toPages(name string, pages []types.PageInput) ([]types.PageInput, error) {
	if len(pages) == 0 {
		return nil, fmt.Errorf("%w: %s has no pages", types.ErrValidation, name)
	}
	return pages, nil
}

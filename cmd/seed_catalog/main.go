// seed_catalog carga el catálogo de productos desde un CSV (UTF-8 o ISO-8859-1).
//
// Uso:
//
//	go run ./cmd/seed_catalog catalogo.csv            # upsert directo en PostgreSQL (config de entorno)
//	go run ./cmd/seed_catalog -sql seed.sql catalogo.csv
//
// El script SQL no pisa el costo de productos existentes: el costo promedio lo mantiene el motor.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/jhoicas/stock-engine/internal/infrastructure/postgres"
	"github.com/jhoicas/stock-engine/pkg/config"
)

func main() {
	sqlOut := flag.String("sql", "", "escribir script SQL en lugar de cargar en la BD")
	flag.Parse()

	csvPath := "catalogo.csv"
	if flag.NArg() > 0 {
		csvPath = flag.Arg(0)
	}
	f, err := os.Open(csvPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Abrir CSV: %v\n", err)
		os.Exit(1)
	}
	defer f.Close()

	products, err := parseCatalog(f)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Catálogo: %v\n", err)
		os.Exit(1)
	}

	if *sqlOut != "" {
		out, err := os.Create(*sqlOut)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Crear archivo: %v\n", err)
			os.Exit(1)
		}
		defer out.Close()
		if err := writeSQL(out, products); err != nil {
			fmt.Fprintf(os.Stderr, "Escribir SQL: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Generado %s: %d productos\n", *sqlOut, len(products))
		return
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Configuración: %v\n", err)
		os.Exit(1)
	}
	ctx := context.Background()
	pool, err := postgres.NewPool(ctx, cfg.DB)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Conexión: %v\n", err)
		os.Exit(1)
	}
	defer pool.Close()
	if err := postgres.Migrate(ctx, pool); err != nil {
		fmt.Fprintf(os.Stderr, "Esquema: %v\n", err)
		os.Exit(1)
	}

	repo := postgres.NewProductRepository(pool)
	for _, p := range products {
		if err := repo.Upsert(ctx, p); err != nil {
			fmt.Fprintf(os.Stderr, "Upsert %s: %v\n", p.SKU, err)
			os.Exit(1)
		}
	}
	fmt.Printf("Cargados %d productos\n", len(products))
}

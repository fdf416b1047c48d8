package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/wisbric/launchpad/internal/app"
	"github.com/wisbric/launchpad/pkg/catalog"
)

func catalogCommands() []*cobra.Command {
	var description string
	createProduct := &cobra.Command{
		Use:   "create-product NAME",
		Short: "Create a product",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSetup(cmd.Context(), func(ctx context.Context, s *app.Setup) error {
				req := catalog.CreateProductRequest{Name: args[0]}
				if description != "" {
					req.Description = &description
				}
				p, err := catalog.NewService(s.DB, s.Logger).CreateProduct(ctx, req)
				if err != nil {
					return err
				}
				return printYAML(p)
			})
		},
	}
	createProduct.Flags().StringVar(&description, "description", "", "product description")

	var updateDescription string
	var canonicalTemplateID int64
	updateProduct := &cobra.Command{
		Use:   "update-product PRODUCT_ID",
		Short: "Update a product's description or canonical template",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0], "PRODUCT_ID")
			if err != nil {
				return err
			}
			return withSetup(cmd.Context(), func(ctx context.Context, s *app.Setup) error {
				req := catalog.UpdateProductRequest{}
				if cmd.Flags().Changed("description") {
					req.Description = &updateDescription
				}
				if cmd.Flags().Changed("template-id") {
					req.CanonicalTemplateID = &canonicalTemplateID
				}
				p, err := catalog.NewService(s.DB, s.Logger).UpdateProduct(ctx, id, req)
				if err != nil {
					return err
				}
				return printYAML(p)
			})
		},
	}
	updateProduct.Flags().StringVar(&updateDescription, "description", "", "product description")
	updateProduct.Flags().Int64Var(&canonicalTemplateID, "template-id", 0, "canonical template for new deployments")

	getProduct := &cobra.Command{
		Use:   "get-product PRODUCT_ID",
		Short: "Show a product",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0], "PRODUCT_ID")
			if err != nil {
				return err
			}
			return withSetup(cmd.Context(), func(ctx context.Context, s *app.Setup) error {
				p, err := catalog.NewService(s.DB, s.Logger).GetProduct(ctx, id)
				if err != nil {
					return err
				}
				return printYAML(p)
			})
		},
	}

	listProducts := &cobra.Command{
		Use:   "list-products",
		Short: "List active products",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSetup(cmd.Context(), func(ctx context.Context, s *app.Setup) error {
				items, err := catalog.NewService(s.DB, s.Logger).ListProducts(ctx)
				if err != nil {
					return err
				}
				return printYAML(items)
			})
		},
	}

	deleteProduct := &cobra.Command{
		Use:   "delete-product PRODUCT_ID",
		Short: "Soft-delete a product",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0], "PRODUCT_ID")
			if err != nil {
				return err
			}
			return withSetup(cmd.Context(), func(ctx context.Context, s *app.Setup) error {
				return catalog.NewService(s.DB, s.Logger).DeleteProduct(ctx, id)
			})
		},
	}

	var (
		chartDigest      string
		versionLabel     string
		defaultValues    string
		valuesSchema     string
		capabilities     string
		healthTimeoutSec int
	)
	createTemplate := &cobra.Command{
		Use:   "create-template PRODUCT_ID CHART_REF CHART_VERSION",
		Short: "Create an immutable template version",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			productID, err := parseID(args[0], "PRODUCT_ID")
			if err != nil {
				return err
			}
			return withSetup(cmd.Context(), func(ctx context.Context, s *app.Setup) error {
				req := catalog.CreateTemplateRequest{
					ProductID:    productID,
					ChartRef:     args[1],
					ChartVersion: args[2],
				}
				if chartDigest != "" {
					req.ChartDigest = &chartDigest
				}
				if versionLabel != "" {
					req.VersionLabel = &versionLabel
				}
				if healthTimeoutSec > 0 {
					req.HealthTimeoutSec = &healthTimeoutSec
				}
				for _, doc := range []struct {
					name string
					raw  string
					dst  *[]byte
				}{
					{"--defaults", defaultValues, (*[]byte)(&req.DefaultValues)},
					{"--schema", valuesSchema, (*[]byte)(&req.ValuesSchema)},
					{"--capabilities", capabilities, (*[]byte)(&req.Capabilities)},
				} {
					parsed, err := parseJSONObject(doc.name, doc.raw)
					if err != nil {
						return err
					}
					*doc.dst = parsed
				}
				tv, err := catalog.NewService(s.DB, s.Logger).CreateTemplate(ctx, req)
				if err != nil {
					return err
				}
				return printYAML(tv)
			})
		},
	}
	createTemplate.Flags().StringVar(&chartDigest, "digest", "", "chart digest to pin (sha256:...)")
	createTemplate.Flags().StringVar(&versionLabel, "label", "", "human-readable version label")
	createTemplate.Flags().StringVar(&defaultValues, "defaults", "", "default values as inline JSON")
	createTemplate.Flags().StringVar(&valuesSchema, "schema", "", "values JSON Schema as inline JSON")
	createTemplate.Flags().StringVar(&capabilities, "capabilities", "", "capabilities document as inline JSON")
	createTemplate.Flags().IntVar(&healthTimeoutSec, "health-timeout", 0, "install health timeout in seconds")

	listTemplates := &cobra.Command{
		Use:   "list-templates PRODUCT_ID",
		Short: "List a product's template versions",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			productID, err := parseID(args[0], "PRODUCT_ID")
			if err != nil {
				return err
			}
			return withSetup(cmd.Context(), func(ctx context.Context, s *app.Setup) error {
				items, err := catalog.NewService(s.DB, s.Logger).ListTemplates(ctx, productID)
				if err != nil {
					return err
				}
				return printYAML(items)
			})
		},
	}

	getTemplate := &cobra.Command{
		Use:   "get-template PRODUCT_ID TEMPLATE_ID",
		Short: "Show a template version",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			productID, err := parseID(args[0], "PRODUCT_ID")
			if err != nil {
				return err
			}
			templateID, err := parseID(args[1], "TEMPLATE_ID")
			if err != nil {
				return err
			}
			return withSetup(cmd.Context(), func(ctx context.Context, s *app.Setup) error {
				tv, err := catalog.NewService(s.DB, s.Logger).GetTemplate(ctx, productID, templateID)
				if err != nil {
					return err
				}
				return printYAML(tv)
			})
		},
	}

	deleteTemplate := &cobra.Command{
		Use:   "delete-template PRODUCT_ID TEMPLATE_ID",
		Short: "Soft-delete a template version",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			productID, err := parseID(args[0], "PRODUCT_ID")
			if err != nil {
				return err
			}
			templateID, err := parseID(args[1], "TEMPLATE_ID")
			if err != nil {
				return err
			}
			return withSetup(cmd.Context(), func(ctx context.Context, s *app.Setup) error {
				return catalog.NewService(s.DB, s.Logger).DeleteTemplate(ctx, productID, templateID)
			})
		},
	}

	return []*cobra.Command{
		createProduct, updateProduct, getProduct, listProducts, deleteProduct,
		createTemplate, listTemplates, getTemplate, deleteTemplate,
	}
}
